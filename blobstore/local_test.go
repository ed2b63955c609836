package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestOpenFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.ragfile", []byte("RAGFILE\x01\x00\x00\x00"))

	b, err := OpenFile(path)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(11), b.Size())
	p := make([]byte, 7)
	_, err = b.ReadAt(p, 0)
	require.NoError(t, err)
	assert.Equal(t, "RAGFILE", string(p))

	m, ok := b.(Mappable)
	require.True(t, ok)
	assert.Len(t, m.Bytes(), 11)
}

func TestOpenFileEmpty(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty", nil)

	b, err := OpenFile(path)
	require.NoError(t, err)
	defer b.Close()

	assert.Zero(t, b.Size())
	_, err = b.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobClose(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a", []byte("data"))
	b, err := OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, err = b.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, b.Close(), "second Close")
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "docs"), 0755))
	writeFile(t, filepath.Join(dir, "docs"), "a.ragfile", []byte("hello"))

	s := NewLocalStore(dir)
	b, err := s.Open(context.Background(), "docs/a.ragfile")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(5), b.Size())

	_, err = s.Open(context.Background(), "docs/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
