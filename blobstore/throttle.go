package blobstore

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle limits reads from b to bytesPerSec. Scans of large files
// against shared storage use it to leave bandwidth for other readers.
// A non-positive limit returns b unchanged.
func Throttle(b Blob, bytesPerSec int) Blob {
	if bytesPerSec <= 0 {
		return b
	}
	return &throttledBlob{
		Blob:    b,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

type throttledBlob struct {
	Blob
	limiter *rate.Limiter
}

// ReadAt waits for tokens in burst-sized steps, since WaitN rejects
// requests larger than the burst.
func (b *throttledBlob) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	burst := b.limiter.Burst()
	for total < len(p) {
		step := min(len(p)-total, burst)
		if err := b.limiter.WaitN(context.Background(), step); err != nil {
			return total, err
		}
		n, err := b.Blob.ReadAt(p[total:total+step], off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
