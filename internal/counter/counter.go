package counter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

const sentinel = '-'

var (
	// ErrUnusable reports a counter whose content was deliberately
	// invalidated. Callers must treat the count as zero and carry on.
	ErrUnusable = errors.New("counter content unusable")

	// ErrCorrupt reports counter content that is neither empty, the
	// sentinel, nor pure decimal digits.
	ErrCorrupt = errors.New("counter content corrupt")

	// ErrLockTimeout reports that the exclusive lock stayed busy for the
	// whole retry budget.
	ErrLockTimeout = errors.New("counter lock busy")
)

// seam for the partial-write tests
var ftruncate = unix.Ftruncate

// File is an open, exclusively locked counter file. Closing it releases
// the lock; the lock is never held across more than one acquire or
// release cycle.
type File struct {
	f    *os.File
	path string
}

// Open opens path (creating it 0644 if absent, and its containing
// directory 0755 if absent) and takes a non-blocking exclusive flock,
// retrying per policy while the lock is held elsewhere.
func Open(path string, pol Policy) (*File, error) {
	pol = pol.withDefaults()

	dir := filepath.Dir(path)
	if st, err := os.Stat(dir); err != nil {
		if err := os.Mkdir(dir, 0755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%s exists but is not a directory", dir)
	}

	f, err := openRetry(path, pol)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &File{f: f, path: path}, nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if attempt+1 >= pol.Attempts {
			_ = f.Close()
			return nil, fmt.Errorf("lock %s after %d attempts: %w", path, pol.Attempts, ErrLockTimeout)
		}
		time.Sleep(pol.Delay)
	}
}

func openRetry(path string, pol Policy) (*os.File, error) {
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		if attempt+1 >= pol.Attempts {
			return nil, fmt.Errorf("open %s after %d attempts: %w", path, pol.Attempts, err)
		}
		time.Sleep(pol.Delay)
	}
}

func (c *File) Path() string { return c.path }

// Read decodes the whole payload. Empty means zero; a lone sentinel byte
// yields ErrUnusable; pure digits parse as a non-negative count; anything
// else is ErrCorrupt.
func (c *File) Read() (int, error) {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s: %w", c.path, err)
	}
	b, err := io.ReadAll(c.f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", c.path, err)
	}
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) == 1 && b[0] == sentinel {
		return 0, ErrUnusable
	}
	count := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("%w: %s", ErrCorrupt, c.path)
		}
		count = count*10 + int(ch-'0')
	}
	return count, nil
}

// Write stores n as minimal decimal and truncates to the written length.
// A negative n writes the sentinel, marking the counter unusable. If the
// write or truncate fails after bytes were committed, the file is
// invalidated so later readers see the sentinel instead of garbage.
func (c *File) Write(n int) error {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", c.path, err)
	}

	var buf []byte
	if n >= 0 {
		buf = []byte(strconv.Itoa(n))
	} else {
		buf = []byte{sentinel}
	}

	w, err := c.f.Write(buf)
	if err != nil {
		if w > 0 {
			c.invalidate()
		}
		return fmt.Errorf("write %s: %w", c.path, err)
	}
	if err := ftruncate(int(c.f.Fd()), int64(len(buf))); err != nil {
		c.invalidate()
		return fmt.Errorf("truncate %s: %w", c.path, err)
	}
	return nil
}

// invalidate turns an unknown partial state into the well-defined
// sentinel. Best effort: if even this fails there is nothing left to do,
// and a later read reports corruption rather than a wrong count.
func (c *File) invalidate() {
	if _, err := c.f.Seek(0, io.SeekStart); err != nil {
		return
	}
	if w, err := c.f.Write([]byte{sentinel}); err != nil || w != 1 {
		return
	}
	_ = unix.Ftruncate(int(c.f.Fd()), 1)
}

// Close releases the lock and closes the file.
func (c *File) Close() error {
	if c.f == nil {
		return nil
	}
	_ = unix.Flock(int(c.f.Fd()), unix.LOCK_UN)
	err := c.f.Close()
	c.f = nil
	return err
}
