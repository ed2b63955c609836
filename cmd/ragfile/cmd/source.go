package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jpl-au/ragfile"
	"github.com/jpl-au/ragfile/blobstore"
	"github.com/jpl-au/ragfile/blobstore/minio"
	"github.com/jpl-au/ragfile/blobstore/s3"
)

// openReader opens src, which is a local path, s3://bucket/key or
// minio://endpoint/bucket/key. MinIO credentials come from
// MINIO_ACCESS_KEY and MINIO_SECRET_KEY; MINIO_INSECURE=1 selects http.
func openReader(ctx context.Context, g *globals, src string) (*ragfile.Reader, error) {
	b, err := openBlob(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	r, err := ragfile.OpenBlob(blobstore.Throttle(b, g.throttle), g.options())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	return r, nil
}

func openBlob(ctx context.Context, src string) (blobstore.Blob, error) {
	switch {
	case strings.HasPrefix(src, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(src, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("want s3://bucket/key")
		}
		store, err := s3.NewFromConfig(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		return store.Open(ctx, key)

	case strings.HasPrefix(src, "minio://"):
		parts := strings.SplitN(strings.TrimPrefix(src, "minio://"), "/", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("want minio://endpoint/bucket/key")
		}
		store, err := minio.Dial(minio.Config{
			Endpoint:  parts[0],
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Region:    os.Getenv("MINIO_REGION"),
			Secure:    os.Getenv("MINIO_INSECURE") != "1",
		}, parts[1], "")
		if err != nil {
			return nil, err
		}
		return store.Open(ctx, parts[2])

	default:
		return blobstore.OpenFile(src)
	}
}
