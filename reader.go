// File access.
//
// A Reader validates the header and parses the index table once, on open.
// Sections are located through the table and their preambles are checked
// against it when opened. Records are decoded lazily by cursors, each of
// which owns its position, so a Reader carries no mutable state after open
// and any number of cursors may scan it concurrently.
package ragfile

import (
	"io"
	"iter"
	"sync/atomic"

	"github.com/jpl-au/ragfile/blobstore"
	"go.uber.org/zap"
)

// Reader provides read access to one finished file.
type Reader struct {
	s        *stream
	size     int64
	header   Header
	order    byteOrder
	index    *Index
	tableEnd int64
	opts     Options
	log      *zap.Logger
	closer   io.Closer
	closed   atomic.Bool
}

// NewReader reads the header and index table of the size-byte file in r.
func NewReader(r io.ReaderAt, size int64, opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	s := newStream(r, nil, opts)

	if size < int64(HeaderSize) {
		return nil, errAt(ErrFormat, size, "file of %d bytes is shorter than the %d byte header", size, HeaderSize)
	}
	buf, err := s.read(0, HeaderSize)
	if err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		opts.Metrics.fail("open")
		return nil, err
	}
	if _, degraded := hdr.Version.supported(); degraded {
		opts.Logger.Warn("ragfile version is newer than this reader; newer features are ignored",
			zap.Stringer("version", hdr.Version),
			zap.Stringer("supported", CurrentVersion))
	}

	ix, tableEnd, err := decodeIndex(s, size)
	if err != nil {
		opts.Metrics.fail("open")
		return nil, err
	}
	opts.Logger.Debug("ragfile opened",
		zap.Stringer("version", hdr.Version),
		zap.Stringer("endianness", hdr.Endianness),
		zap.Int("strategies", ix.Len()),
		zap.Int64("size", size))

	return &Reader{
		s:        s,
		size:     size,
		header:   hdr,
		order:    hdr.Endianness.order(),
		index:    ix,
		tableEnd: tableEnd,
		opts:     opts,
		log:      opts.Logger,
	}, nil
}

// Open memory-maps the file at path and reads it.
func Open(path string, opts Options) (*Reader, error) {
	b, err := blobstore.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return OpenBlob(b, opts)
}

// OpenBlob reads a file from any blob store. Closing the Reader closes b.
func OpenBlob(b blobstore.Blob, opts Options) (*Reader, error) {
	r, err := NewReader(b, b.Size(), opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	r.closer = b
	return r, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() Header { return r.header }

// Size returns the file size the reader was opened with.
func (r *Reader) Size() int64 { return r.size }

// Index returns the parsed strategy table.
func (r *Reader) Index() *Index { return r.index }

// Strategies returns the strategy names in table order.
func (r *Reader) Strategies() []string { return r.index.Names() }

// Range returns the byte range of the named strategy's section.
func (r *Reader) Range(name string) (Range, error) {
	e, ok := r.index.Lookup(name)
	if !ok {
		return Range{}, errAt(ErrUnknownStrategy, -1, "%q", name)
	}
	return e.Range, nil
}

// Open locates the named strategy and validates its preamble.
func (r *Reader) Open(name string) (*Section, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	e, ok := r.index.Lookup(name)
	if !ok {
		return nil, errAt(ErrUnknownStrategy, -1, "%q", name)
	}
	return r.open(e)
}

func (r *Reader) open(e IndexEntry) (*Section, error) {
	pre, err := decodePreamble(r.s, e.Range, r.order)
	if err != nil {
		r.opts.Metrics.fail("open section")
		return nil, err
	}
	return &Section{r: r, entry: e, pre: pre}, nil
}

// Sections opens every section in table order. Iteration stops at the
// first section that fails to open.
func (r *Reader) Sections() iter.Seq2[*Section, error] {
	return func(yield func(*Section, error) bool) {
		for _, e := range r.index.entries {
			if r.closed.Load() {
				yield(nil, ErrClosed)
				return
			}
			sec, err := r.open(e)
			if !yield(sec, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying blob when the reader owns one. Cursors
// fail with ErrClosed afterwards.
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Section is one strategy's byte range with its validated preamble.
type Section struct {
	r     *Reader
	entry IndexEntry
	pre   preamble
}

// Name returns the strategy name.
func (s *Section) Name() string { return s.entry.Name }

// Kind returns the section kind. Unknown kinds are reported as-is.
func (s *Section) Kind() Kind { return s.pre.kind }

// Padding returns the record alignment, or 0 for unknown kinds.
func (s *Section) Padding() int { return s.pre.padding }

// Precision returns the element precision of an embedding section.
func (s *Section) Precision() Precision { return s.pre.precision }

// Range returns the section's range from the index table.
func (s *Section) Range() Range { return s.entry.Range }

// DataRange returns the record region, or the whole range for unknown kinds.
func (s *Section) DataRange() Range {
	if !s.pre.kind.Known() {
		return s.entry.Range
	}
	return Range{s.pre.dataStart, s.pre.dataEnd}
}

// Raw returns a reader over the section's bytes, preamble included. It
// works for every kind, so unknown sections can be copied or skipped.
func (s *Section) Raw() *io.SectionReader {
	return io.NewSectionReader(s.r.s, s.entry.Start, s.entry.Len())
}

// Records iterates the section's records. Iteration stops at the first
// error, which is yielded with a zero Record.
func (s *Section) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		c := s.Cursor()
		for c.Next() {
			if !yield(c.Record(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Record{}, err)
		}
	}
}
