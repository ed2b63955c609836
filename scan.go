// Record cursors.
//
// A Cursor walks one section from dataStart, decoding a record at each
// aligned position until it reaches dataEnd exactly. Records are bounded by
// the section: a record or its padding that would cross dataEnd is a
// BoundaryError rather than a read into the neighbouring section. The
// cursor stops at the first error and reports it through Err; Reset
// rewinds it to the first record.
package ragfile

// Cursor is a lazy, restartable iterator over one section's records. A
// Cursor is not safe for concurrent use; open one per goroutine.
type Cursor struct {
	sec    *Section
	rr     recordReader
	pos    int64
	offset int64
	rec    Record
	err    error
	done   bool
}

// Cursor returns a cursor positioned before the first record. Cursors over
// unknown section kinds fail on the first Next with ErrUnsupportedSection.
func (s *Section) Cursor() *Cursor {
	r := s.r
	c := &Cursor{sec: s}
	if !s.pre.kind.Known() {
		c.err = errAt(ErrUnsupportedSection, s.entry.Start, "strategy %q has %s", s.entry.Name, s.pre.kind)
		c.done = true
		return c
	}
	c.rr = recordReader{
		s:       r.s,
		f:       r.header.Version.framing(),
		order:   r.order,
		padding: s.pre.padding,
		end:     s.pre.dataEnd,
		maxSize: r.opts.MaxRecordSize,
	}
	if s.pre.kind == KindEmbedding {
		c.rr.elemSize = s.pre.precision.Bytes()
	}
	c.Reset()
	return c
}

// Next decodes the next record. It returns false at the end of the
// section or on error.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if c.sec.r.closed.Load() {
		c.err, c.done = ErrClosed, true
		return false
	}
	if c.pos == c.rr.end {
		c.done = true
		return false
	}
	rec, next, err := c.rr.decode(c.pos)
	if err != nil {
		c.err, c.done = err, true
		c.rec = Record{}
		c.sec.r.opts.Metrics.fail("read record")
		return false
	}
	c.rec, c.offset, c.pos = rec, c.pos, next
	c.sec.r.opts.Metrics.record(c.sec.pre.kind, false)
	return true
}

// Record returns the record decoded by the last successful Next.
func (c *Cursor) Record() Record { return c.rec }

// Offset returns the absolute file offset of the current record.
func (c *Cursor) Offset() int64 { return c.offset }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// Reset rewinds the cursor to the first record and clears any error.
func (c *Cursor) Reset() {
	if !c.sec.pre.kind.Known() {
		return
	}
	c.pos = c.sec.pre.dataStart
	c.offset = c.pos
	c.rec = Record{}
	c.err = nil
	c.done = false
}
