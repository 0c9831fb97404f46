package lib

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another run already works in the directory.
var ErrLocked = errors.New("working directory is locked by another run")

// LockWorkDir takes the advisory lock of a working directory. The returned
// function releases it. The lock file stays in place so that every run locks
// the same inode.
func LockWorkDir(workDir string) (func() error, error) {
	lockPath := GetLockPath(workDir)
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}

	return func() error {
		if err := fileLock.Unlock(); err != nil {
			return fmt.Errorf("failed to unlock %s: %w", lockPath, err)
		}
		return nil
	}, nil
}
