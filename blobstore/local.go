package blobstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// LocalStore opens blobs from a directory on the local file system.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Open maps the named file read-only.
func (s *LocalStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenFile(filepath.Join(s.root, filepath.FromSlash(name)))
}

// OpenFile maps the file at path read-only. Finished RAGFiles are
// immutable, so the mapping stays valid for the life of the blob.
func OpenFile(path string) (Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := fi.Size()
	if size < 0 || int64(int(size)) != size {
		f.Close()
		return nil, errors.New("blobstore: file too large to map")
	}
	if size == 0 {
		return &localBlob{f: f}, nil
	}

	data, unmap, err := mmap(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localBlob{f: f, data: data, unmap: unmap}, nil
}

type localBlob struct {
	mu    sync.RWMutex
	f     *os.File
	data  []byte
	unmap func([]byte) error
}

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.f == nil {
		return 0, os.ErrClosed
	}
	return readAt(b.data, p, off)
}

func (b *localBlob) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

func (b *localBlob) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

func (b *localBlob) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	var err error
	if b.data != nil {
		err = b.unmap(b.data)
		b.data = nil
	}
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	b.f = nil
	return err
}
