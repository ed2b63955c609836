// OS-level file locking for path-based writers.
//
// Create writes into path.tmp and holds an exclusive, non-blocking lock on
// it (flock(2) / LockFileEx) until the file is renamed into place or the
// writer is aborted, so two processes can never build the same file at
// once. The mutex is held for the entire lock syscall so that Fd() cannot
// race with Close() on the same *os.File.
//
// Callers use setFile(nil) before closing the underlying file. This blocks
// until any in-flight syscall completes, then makes subsequent calls no-ops.
package ragfile

import (
	"errors"
	"os"
	"sync"
)

// maxLockAttempts bounds how often Create reopens a temp file that was
// renamed or removed between its open and its lock.
const maxLockAttempts = 3

// errStaleLock reports a lock taken on a handle whose path now names a
// different file, or none.
var errStaleLock = errors.New("locked file no longer at its path")

// fileLock coordinates an OS-level exclusive lock with handle teardown.
type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

// TryLock takes the exclusive lock without waiting. It returns ErrLocked
// when another handle holds it.
func (l *fileLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.tryLock()
}

// Unlock releases the lock. Returns nil if the handle has been cleared.
func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

// setFile swaps the underlying file handle. Passing nil drains any
// in-flight syscall and disables further locking.
func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}

// lockPath takes the exclusive lock on f and checks that f is still the file
// at path. A handle opened just before the previous owner renamed or removed
// path locks an orphaned file; writing to it would clobber the published
// copy, so errStaleLock is returned and the lock released.
func lockPath(f *os.File, path string) (*fileLock, error) {
	l := &fileLock{f: f}
	if err := l.TryLock(); err != nil {
		return nil, err
	}
	held, err := f.Stat()
	if err != nil {
		l.Unlock()
		return nil, err
	}
	cur, err := os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		l.Unlock()
		return nil, err
	}
	if err != nil || !os.SameFile(held, cur) {
		l.Unlock()
		return nil, errStaleLock
	}
	return l, nil
}
