// Package minio serves RAGFiles stored in MinIO or any S3-compatible
// service as blobstore blobs, using ranged GetObject requests.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/jpl-au/ragfile/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store opens objects of one bucket as blobs.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a Store. prefix is joined in front of every name.
func NewStore(client *minio.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Config holds connection settings for Dial.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// Dial connects to an S3-compatible endpoint with static credentials.
func Dial(cfg Config, bucket, prefix string) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return NewStore(client, bucket, prefix), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open looks up the object's size and returns a blob over it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	return &blob{client: s.client, bucket: s.bucket, key: key, size: info.Size}, nil
}

type blob struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (b *blob) Size() int64  { return b.size }
func (b *blob) Close() error { return nil }

func (b *blob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off >= b.size {
		return 0, io.EOF
	}
	end := min(off+int64(len(p)), b.size) - 1

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}
	obj, err := b.client.GetObject(context.Background(), b.bucket, b.key, opts)
	if err != nil {
		return 0, classify(err)
	}
	defer obj.Close()

	n, err := io.ReadFull(obj, p[:end-off+1])
	if err != nil {
		return n, classify(err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// classify maps MinIO errors onto blobstore sentinels.
func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("minio: %w: %w", blobstore.ErrNotFound, err)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return blobstore.Transient(err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return blobstore.Transient(err)
	}
	return err
}
