package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. It maps to
// os.ErrNotExist so local and remote stores classify the same way.
var ErrNotFound = os.ErrNotExist

// ErrTransient marks a storage failure that may succeed when retried.
var ErrTransient = errors.New("transient storage error")

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Store opens named blobs.
type Store interface {
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to one stored file.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is implemented by blobs backed by memory. The slice is valid
// until the blob is closed.
type Mappable interface {
	Bytes() []byte
}

// readAt copies from data at off with io.ReaderAt semantics.
func readAt(data, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("blobstore: negative offset %d", off)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
