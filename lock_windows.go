//go:build windows

package ragfile

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Windows refuses to rename a file with open handles, so the writer closes
// the temp file (dropping the lock) before renaming it.
const renameWhileOpen = false

func (l *fileLock) tryLock() error {
	var ol windows.Overlapped
	err := windows.LockFileEx(windows.Handle(l.f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, &ol)
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return ErrLocked
	}
	return err
}

func (l *fileLock) unlock() error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(l.f.Fd()), 0, 1, 0, &ol)
}
