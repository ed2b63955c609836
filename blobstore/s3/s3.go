// Package s3 serves RAGFiles stored in Amazon S3 as blobstore blobs.
//
// Each ReadAt is one ranged GetObject request, so a reader only fetches the
// header, the index table and the sections it actually scans. Wrap the
// blob with blobstore.Throttle to bound the request bandwidth.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jpl-au/ragfile/blobstore"
)

// API is the subset of the S3 client used by Store. *s3.Client satisfies it.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store opens objects of one bucket as blobs.
type Store struct {
	client API
	bucket string
	prefix string
}

// NewStore creates a Store. prefix is joined in front of every name.
func NewStore(client API, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// NewFromConfig builds a Store from the default AWS configuration chain
// (environment, shared config, instance role).
func NewFromConfig(ctx context.Context, bucket, prefix string, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}
	return NewStore(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open looks up the object's size and returns a blob over it.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	return &blob{
		client: s.client,
		bucket: s.bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

type blob struct {
	client API
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

	resp, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, end)),
	})
	if err != nil {
		return 0, classify(err)
	}
	defer resp.Body.Close()

	want := int(end - off + 1)
	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		// A body cut short mid-transfer is worth retrying.
		return n, blobstore.Transient(err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// classify maps S3 errors onto blobstore sentinels.
func classify(err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return fmt.Errorf("s3: %w: %w", blobstore.ErrNotFound, err)
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		code := re.HTTPStatusCode()
		if code == http.StatusNotFound {
			return fmt.Errorf("s3: %w: %w", blobstore.ErrNotFound, err)
		}
		if code == http.StatusTooManyRequests || code >= 500 {
			return blobstore.Transient(err)
		}
	}
	return err
}
