//go:build unix

package ragfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameWhileOpen reports whether the temp file can be renamed before its
// handle is closed. Renaming first keeps the lock held until the finished
// file is in place.
const renameWhileOpen = true

func (l *fileLock) tryLock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrLocked
	}
	return err
}

func (l *fileLock) unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
