package blobstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps blobs in memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under name.
func (m *MemoryStore) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = slices.Clone(data)
}

// Open returns a blob over a snapshot of the named data.
func (m *MemoryStore) Open(ctx context.Context, name string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("blobstore: %q: %w", name, ErrNotFound)
	}
	return NewBytes(data), nil
}

// NewBytes returns a blob over data. The slice is not copied.
func NewBytes(data []byte) Blob {
	return &bytesBlob{data: data}
}

type bytesBlob struct {
	data []byte
}

func (b *bytesBlob) ReadAt(p []byte, off int64) (int, error) { return readAt(b.data, p, off) }
func (b *bytesBlob) Size() int64                              { return int64(len(b.data)) }
func (b *bytesBlob) Bytes() []byte                            { return b.data }
func (b *bytesBlob) Close() error                             { return nil }

// Buffer is a growable in-memory file supporting positional reads and
// writes, suitable as the stream of a ragfile Writer.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
}

// WriteAt writes p at off, growing the buffer with zeros as needed.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("blobstore: negative offset %d", off)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if end := off + int64(len(p)); end > int64(len(b.data)) {
		b.data = append(b.data, make([]byte, end-int64(len(b.data)))...)
	}
	return copy(b.data[off:], p), nil
}

// ReadAt reads from the buffer with io.ReaderAt semantics.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return readAt(b.data, p, off)
}

// Size returns the current length of the buffer.
func (b *Buffer) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.data)
}

// Truncate discards everything from size onward.
func (b *Buffer) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("blobstore: negative size %d", size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if size < int64(len(b.data)) {
		b.data = b.data[:size]
	}
	return nil
}
