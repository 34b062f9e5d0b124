package rundir

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// DefaultParent is the well-known parent of all runtime directories.
	DefaultParent = "/run/users"

	// MaxUIDDigits bounds the decimal form of a uid (32-bit range).
	MaxUIDDigits = 10

	// MaxPathLen bounds any composed path before it reaches a syscall.
	MaxPathLen = 4096
)

var (
	ErrPathTooLong = errors.New("path too long")
	ErrBadUID      = errors.New("uid not representable")
)

// Paths holds the two per-uid artifacts: the counter file and the
// runtime directory. Only the leading dot distinguishes them.
type Paths struct {
	Counter string
	Dir     string
}

// BuildPaths derives counter and directory paths for uid under parent:
// <parent>/.<uid> and <parent>/<uid>. Rejects negative or over-long uids
// and composed paths exceeding MaxPathLen before touching the filesystem.
func BuildPaths(parent string, uid int) (Paths, error) {
	if uid < 0 {
		return Paths{}, fmt.Errorf("%w: %d", ErrBadUID, uid)
	}
	digits := strconv.Itoa(uid)
	if len(digits) > MaxUIDDigits {
		return Paths{}, fmt.Errorf("%w: %d", ErrBadUID, uid)
	}
	counter := parent + "/." + digits
	if len(counter) > MaxPathLen {
		return Paths{}, fmt.Errorf("%w: %s", ErrPathTooLong, parent)
	}
	return Paths{Counter: counter, Dir: parent + "/" + digits}, nil
}
