package rundir

import (
	"errors"
	"fmt"
	"os"

	"github.com/hnrobert/rundird/internal/logger"
)

// EnsureParent idempotently creates the shared parent directory and
// re-asserts its ownership and mode. Ownership/mode failures are logged
// but do not fail the call: the directory stays usable without them.
func EnsureParent(path string) error {
	restore := scopedUmask(0o002)
	defer restore()

	if err := os.Mkdir(path, 0775); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create parent %s: %w", path, err)
		}
		st, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat parent %s: %w", path, err)
		}
		if !st.IsDir() {
			return fmt.Errorf("parent %s exists but is not a directory", path)
		}
	}

	if err := os.Chown(path, 0, 0); err != nil {
		logger.Warn("set ownership of %s: %v", path, err)
	}
	if err := os.Chmod(path, 0755); err != nil {
		logger.Warn("set permissions on %s: %v", path, err)
	}
	return nil
}
