package ragfile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"

	"github.com/jpl-au/ragfile/blobstore"
)

// flakyReader fails the first failures calls with err and serves at most
// limit bytes per call afterwards.
type flakyReader struct {
	mu       sync.Mutex
	data     []byte
	err      error
	failures int
	limit    int
	calls    int
}

func (f *flakyReader) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return 0, f.err
	}
	if f.limit > 0 && len(p) > f.limit {
		p = p[:f.limit]
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	return copy(p, f.data[off:]), nil
}

func TestStreamResumesShortReads(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 10)
	fr := &flakyReader{data: data, limit: 7}
	s := newStream(fr, nil, Options{}.withDefaults())

	got, err := s.read(3, 50)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data[3:53]) {
		t.Errorf("read = %q", got)
	}
}

func TestStreamRetriesTransient(t *testing.T) {
	for _, cause := range []error{ErrTransientIO, blobstore.Transient(errors.New("503")), syscall.EINTR, syscall.EAGAIN} {
		fr := &flakyReader{data: []byte("hello"), err: cause, failures: 2}
		s := newStream(fr, nil, Options{}.withDefaults())
		got, err := s.read(0, 5)
		if err != nil {
			t.Errorf("%v: read = %v", cause, err)
			continue
		}
		if string(got) != "hello" {
			t.Errorf("%v: read = %q", cause, got)
		}
	}
}

func TestStreamGivesUpAfterRetries(t *testing.T) {
	fr := &flakyReader{data: []byte("hello"), err: ErrTransientIO, failures: 10}
	s := newStream(fr, nil, Options{Retries: 2}.withDefaults())

	_, err := s.read(0, 5)
	if !errors.Is(err, ErrIO) || !errors.Is(err, ErrTransientIO) {
		t.Fatalf("read = %v, want ErrIO wrapping ErrTransientIO", err)
	}
	var ioe *IOError
	if !errors.As(err, &ioe) || ioe.Attempts != 3 || ioe.Op != "read" {
		t.Errorf("IOError = %+v, want 3 read attempts", ioe)
	}
	if fr.calls != 3 {
		t.Errorf("calls = %d, want 3", fr.calls)
	}
}

func TestStreamRetriesDisabled(t *testing.T) {
	fr := &flakyReader{data: []byte("hello"), err: ErrTransientIO, failures: 1}
	s := newStream(fr, nil, Options{Retries: -1}.withDefaults())
	if _, err := s.read(0, 5); !errors.Is(err, ErrIO) {
		t.Errorf("read = %v, want ErrIO", err)
	}
}

func TestStreamPermanentErrorNotRetried(t *testing.T) {
	fr := &flakyReader{data: []byte("hello"), err: os.ErrPermission, failures: 10}
	s := newStream(fr, nil, Options{}.withDefaults())

	_, err := s.read(0, 5)
	if !errors.Is(err, ErrIO) || !errors.Is(err, os.ErrPermission) {
		t.Fatalf("read = %v, want ErrIO wrapping ErrPermission", err)
	}
	if fr.calls != 1 {
		t.Errorf("calls = %d, want 1", fr.calls)
	}
}

func TestStreamEOFIsBoundary(t *testing.T) {
	s := newStream(bytes.NewReader([]byte("hello")), nil, Options{}.withDefaults())
	_, err := s.read(3, 5)
	if !errors.Is(err, ErrBoundary) {
		t.Fatalf("read = %v, want ErrBoundary", err)
	}
	if off := offsetOf(err); off != 5 {
		t.Errorf("offset = %d, want 5", off)
	}
}

// flakyWriter writes at most limit bytes per call after failing failures
// times.
type flakyWriter struct {
	blobstore.Buffer
	err      error
	failures int
	limit    int
}

func (f *flakyWriter) WriteAt(p []byte, off int64) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, f.err
	}
	if f.limit > 0 && len(p) > f.limit {
		p = p[:f.limit]
	}
	return f.Buffer.WriteAt(p, off)
}

func TestWriterSurvivesFlakyStream(t *testing.T) {
	fw := &flakyWriter{err: ErrTransientIO, failures: 2, limit: 100}
	w, err := NewWriter(fw, Options{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddSection("keyword", keywordCfg, animals); err != nil {
		t.Fatalf("AddSection: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	equalRecords(t, readAll(t, openBuffer(t, &fw.Buffer), "keyword"), animals)
}

func TestWriterFailsOnPermanentWriteError(t *testing.T) {
	fw := &flakyWriter{}
	w, err := NewWriter(fw, Options{})
	if err != nil {
		t.Fatal(err)
	}
	fw.err, fw.failures = os.ErrPermission, 1
	if err := w.AddSection("keyword", keywordCfg, animals); !errors.Is(err, ErrIO) {
		t.Fatalf("AddSection = %v, want ErrIO", err)
	}
	if err := w.Finalize(); !errors.Is(err, ErrWriterState) {
		t.Errorf("Finalize = %v, want ErrWriterState", err)
	}
	if _, err := NewReader(&fw.Buffer, fw.Size(), Options{}); !errors.Is(err, ErrFormat) {
		t.Errorf("NewReader = %v, want ErrFormat", err)
	}
}

func TestStreamShift(t *testing.T) {
	buf := &blobstore.Buffer{}
	buf.WriteAt([]byte("..abcdefgh"), 0)
	s := newStream(buf, buf, Options{}.withDefaults())
	if err := s.shift(2, 10, 3); err != nil {
		t.Fatalf("shift: %v", err)
	}
	if got := string(buf.Bytes()[5:13]); got != "abcdefgh" {
		t.Errorf("shifted = %q, want abcdefgh", got)
	}
}
