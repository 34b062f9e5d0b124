package rundir

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/rundird/internal/logger"
)

// scopedUmask narrows the process umask and returns the restore func.
// Always pair with defer so every exit path restores the old mask.
func scopedUmask(mask int) (restore func()) {
	old := unix.Umask(mask)
	return func() { unix.Umask(old) }
}

// impersonate switches the effective uid/gid to the target user so
// filesystem objects are created with the user's identity, returning the
// restore func. When not running as root it is a no-op: the caller is
// already the user it would impersonate.
//
// The syscall variants of seteuid/setegid apply to every thread of the
// process; x/sys/unix does not expose them on Linux.
func impersonate(uid, gid int) (restore func(), err error) {
	if unix.Geteuid() != 0 {
		return func() {}, nil
	}
	origUID := unix.Geteuid()
	origGID := unix.Getegid()
	if err := syscall.Setegid(gid); err != nil {
		return nil, fmt.Errorf("setegid %d: %w", gid, err)
	}
	if err := syscall.Seteuid(uid); err != nil {
		_ = syscall.Setegid(origGID)
		return nil, fmt.Errorf("seteuid %d: %w", uid, err)
	}
	return func() {
		if err := syscall.Seteuid(origUID); err != nil {
			logger.Error("restore euid %d: %v", origUID, err)
		}
		if err := syscall.Setegid(origGID); err != nil {
			logger.Error("restore egid %d: %v", origGID, err)
		}
	}, nil
}
