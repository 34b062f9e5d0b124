package rundir

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hnrobert/rundird/internal/logger"
)

// Remove deletes path: a plain unlink for files, a depth-first recursive
// removal for directories. A failing entry never aborts the scan of its
// siblings; the aggregate error reports that something was left behind.
func Remove(path string) error {
	err := unix.Unlink(path)
	if err == nil {
		return nil
	}
	if err != unix.EISDIR {
		return fmt.Errorf("unlink %s: %w", path, err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("open directory %s: %w", path, err)
	}

	failed := false
	for _, ent := range entries {
		if len(path)+1+len(ent.Name()) > MaxPathLen {
			logger.Error("path too long: %s/%s", path, ent.Name())
			failed = true
			continue
		}
		full := path + "/" + ent.Name()

		if ent.IsDir() {
			if rerr := Remove(full); rerr != nil {
				failed = true
			}
			continue
		}
		if uerr := unix.Unlink(full); uerr != nil {
			logger.Error("unlink %s: %v", full, uerr)
			failed = true
		}
	}

	if rerr := unix.Rmdir(path); rerr != nil {
		logger.Error("remove directory %s: %v", path, rerr)
		failed = true
	}
	if failed {
		return fmt.Errorf("remove %s: not all entries could be removed", path)
	}
	return nil
}
