// Write primitives for the underlying byte stream.
//
// The Writer appends sections at its cursor and later patches the header,
// the index table and section preambles in place, so every write is
// positional (WriteAt). Short writes are resumed and transient failures are
// retried the same way reads are.
package ragfile

import (
	"errors"
	"io"
)

// chunkSize bounds the buffers used for zero fill and section relocation.
const chunkSize = 1 << 20

// WriteAt writes all of p at off.
func (s *stream) WriteAt(p []byte, off int64) (int, error) {
	total, attempts := 0, 0
	for total < len(p) {
		n, err := s.wa.WriteAt(p[total:], off+int64(total))
		total += n
		if total == len(p) {
			break
		}
		switch {
		case err == nil && n > 0:
			continue
		case err != nil && !transient(err):
			return total, &IOError{Op: "write", Offset: off + int64(total), Attempts: attempts + 1, Err: err}
		}

		attempts++
		if attempts > s.retries {
			if err == nil {
				err = io.ErrShortWrite
			}
			return total, &IOError{Op: "write", Offset: off + int64(total), Attempts: attempts, Err: err}
		}
		s.metrics.retry("write")
		backoff(attempts)
	}
	s.metrics.write(total)
	return total, nil
}

func (s *stream) write(off int64, p []byte) error {
	_, err := s.WriteAt(p, off)
	return err
}

// zero fills [off, off+n) with zero bytes.
func (s *stream) zero(off, n int64) error {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, min(n, chunkSize))
	for n > 0 {
		step := min(n, int64(len(buf)))
		if err := s.write(off, buf[:step]); err != nil {
			return err
		}
		off += step
		n -= step
	}
	return nil
}

// shift moves [from, end) forward by delta bytes. Chunks are copied from
// the tail backwards so the source is never overwritten before it is read.
func (s *stream) shift(from, end, delta int64) error {
	buf := make([]byte, min(end-from, chunkSize))
	for end > from {
		step := min(end-from, int64(len(buf)))
		if _, err := s.ReadAt(buf[:step], end-step); err != nil {
			if errors.Is(err, io.EOF) {
				return errAt(ErrBoundary, end-step, "stream shorter than written data")
			}
			return err
		}
		if err := s.write(end-step+delta, buf[:step]); err != nil {
			return err
		}
		end -= step
	}
	return nil
}

// sync flushes the writer if it supports it (*os.File does).
func (s *stream) sync() error {
	if f, ok := s.wa.(interface{ Sync() error }); ok {
		if err := f.Sync(); err != nil {
			return &IOError{Op: "sync", Offset: -1, Attempts: 1, Err: err}
		}
	}
	return nil
}
