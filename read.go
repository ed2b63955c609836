// Low-level read primitives for the underlying byte stream.
//
// Every read goes through stream.ReadAt, which loops until the buffer is
// full. Short reads are resumed where they stopped and transient failures
// are retried with a short backoff; anything else, or a transient failure
// that outlives the retry budget, surfaces as an *IOError. io.EOF is passed
// through unchanged so that callers can turn it into a BoundaryError with
// the offset they were reading.
//
// All reads are positional (ReadAt), so concurrent cursors sharing one
// stream never disturb each other.
package ragfile

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// stream wraps the caller's reader and writer with retrying, positional I/O.
type stream struct {
	ra      io.ReaderAt
	wa      io.WriterAt
	retries int
	metrics *Metrics
}

func newStream(ra io.ReaderAt, wa io.WriterAt, opts Options) *stream {
	return &stream{ra: ra, wa: wa, retries: opts.Retries, metrics: opts.Metrics}
}

// ReadAt reads len(p) bytes at off. It returns io.EOF only when the stream
// ends before p is full.
func (s *stream) ReadAt(p []byte, off int64) (int, error) {
	total, attempts := 0, 0
	for total < len(p) {
		n, err := s.ra.ReadAt(p[total:], off+int64(total))
		total += n
		if total == len(p) {
			break
		}
		switch {
		case err == nil && n > 0:
			continue
		case errors.Is(err, io.EOF):
			return total, io.EOF
		case err != nil && !transient(err):
			return total, &IOError{Op: "read", Offset: off + int64(total), Attempts: attempts + 1, Err: err}
		}

		attempts++
		if attempts > s.retries {
			if err == nil {
				err = io.ErrNoProgress
			}
			return total, &IOError{Op: "read", Offset: off + int64(total), Attempts: attempts, Err: err}
		}
		s.metrics.retry("read")
		backoff(attempts)
	}
	s.metrics.read(total)
	return total, nil
}

// read returns n bytes at off. A stream that ends early yields a
// BoundaryError at the first missing byte.
func (s *stream) read(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := s.ReadAt(buf, off)
	if errors.Is(err, io.EOF) {
		return nil, errAt(ErrBoundary, off+int64(got), "stream ended %d bytes early", n-got)
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// transient reports whether err may succeed on a later attempt.
func transient(err error) bool {
	if errors.Is(err, ErrTransientIO) || errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// backoff sleeps before retry attempt n (1-based): 1ms, 2ms, 4ms, capped at 64ms.
func backoff(n int) {
	d := time.Millisecond << min(n-1, 6)
	time.Sleep(d)
}
