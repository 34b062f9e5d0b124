package rundir

import (
	"errors"
	"fmt"
	"os"

	"github.com/hnrobert/rundird/internal/counter"
	"github.com/hnrobert/rundird/internal/logger"
)

// Manager runs the acquire/release protocol against one parent
// directory. All cross-process coordination goes through the per-uid
// counter file lock, so a Manager carries no state of its own.
type Manager struct {
	Parent string
	Policy counter.Policy
}

func New(parent string) *Manager {
	if parent == "" {
		parent = DefaultParent
	}
	return &Manager{Parent: parent, Policy: counter.DefaultPolicy()}
}

// Acquire registers one more session for uid and returns the runtime
// directory path. The directory is created (and its ownership asserted)
// on every acquire, not only on the 0->1 transition; creation is
// idempotent. On any failure past the increment the counter is reverted
// to its prior value.
func (m *Manager) Acquire(uid, gid int) (string, error) {
	if err := EnsureParent(m.Parent); err != nil {
		return "", err
	}
	p, err := BuildPaths(m.Parent, uid)
	if err != nil {
		return "", err
	}

	cf, err := counter.Open(p.Counter, m.Policy)
	if err != nil {
		return "", err
	}
	defer func() { _ = cf.Close() }()

	count, err := cf.Read()
	if err != nil {
		if !errors.Is(err, counter.ErrUnusable) {
			return "", err
		}
		count = 0
	}

	if err := cf.Write(count + 1); err != nil {
		return "", err
	}

	if err := m.createDir(p.Dir, uid, gid); err != nil {
		// Revert to the pre-increment value; this session never ran.
		if werr := cf.Write(count); werr != nil {
			logger.Error("revert counter %s: %v", p.Counter, werr)
		}
		return "", err
	}
	return p.Dir, nil
}

// createDir makes the runtime directory as the target user and asserts
// its ownership and mode. Wrong ownership on an ephemeral user directory
// is a security defect, so unlike the parent these assertions are fatal.
func (m *Manager) createDir(dir string, uid, gid int) error {
	restore, err := impersonate(uid, gid)
	if err != nil {
		return err
	}
	defer restore()

	if err := os.Mkdir(dir, 0700); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.Chown(dir, uid, gid); err != nil {
		return fmt.Errorf("set ownership of %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return fmt.Errorf("set permissions on %s: %w", dir, err)
	}
	return nil
}

// Release unregisters one session for uid. When the count reaches zero
// the runtime directory is removed recursively; a removal failure still
// updates the counter (marking it unusable) so the decrement is never
// lost, and is reported to the caller.
func (m *Manager) Release(uid int) error {
	if err := EnsureParent(m.Parent); err != nil {
		return err
	}
	p, err := BuildPaths(m.Parent, uid)
	if err != nil {
		return err
	}

	cf, err := counter.Open(p.Counter, m.Policy)
	if err != nil {
		return err
	}
	defer func() { _ = cf.Close() }()

	count, err := cf.Read()
	if err != nil {
		if errors.Is(err, counter.ErrUnusable) {
			// Nothing to decrement, nothing to remove.
			return nil
		}
		return err
	}

	if count > 0 {
		count--
	}

	var rmErr error
	if count == 0 {
		if rmErr = Remove(p.Dir); rmErr != nil {
			logger.Error("remove %s: %v", p.Dir, rmErr)
			// Mark the counter unusable rather than record a count that
			// no longer matches the directory state.
			count = -1
		}
	}

	if err := cf.Write(count); err != nil {
		return err
	}
	return rmErr
}
