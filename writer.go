// File construction.
//
// A Writer builds a file in two passes over one positional stream:
//
//  1. NewWriter writes a provisional header with the magic zeroed and
//     reserves IndexReserve bytes for the index table. Sections are then
//     appended at the cursor one at a time: preamble, zero fill to the
//     first aligned offset, records.
//
//  2. Finalize encodes the table with the final offsets. The first
//     section's preamble moves down to the end of the table, absorbing the
//     unused reservation as fill, because readers find the end of the table
//     at the smallest section start. If the table outgrows the reservation
//     every section is shifted forward by a multiple of 16 bytes, which
//     keeps every record aligned for every padding. The magic is written
//     last and the stream is synced.
//
// Until the magic is written the file does not validate, so a writer that
// fails or is abandoned part way never yields a readable file.
//
// Create adds path-based publication on top: the file is built in
// path.tmp under an exclusive lock and renamed into place by Finalize.
package ragfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// relocationStep is the granularity of section shifts. It is a multiple of
// every allowed padding.
const relocationStep = 16

// maxTableIterations bounds the fixed-point search for the table length.
const maxTableIterations = 32

type writerState uint8

// Writer states. A writer moves forward through them and never back.
const (
	stateOpen writerState = iota
	stateHeaderWritten
	stateSectionsWritten
	stateIndexPatched
	stateFinalized
	stateFailed
	stateAborted
)

func (s writerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHeaderWritten:
		return "header written"
	case stateSectionsWritten:
		return "sections written"
	case stateIndexPatched:
		return "index patched"
	case stateFinalized:
		return "finalized"
	case stateFailed:
		return "failed"
	case stateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// WriteStream is the random-access storage a Writer builds into.
// *os.File and *blobstore.Buffer implement it.
type WriteStream interface {
	io.ReaderAt
	io.WriterAt
}

// Writer builds one file. Methods are safe for concurrent use but sections
// are written one at a time, in call order.
type Writer struct {
	mu       sync.Mutex
	s        *stream
	opts     Options
	log      *zap.Logger
	header   Header
	order    byteOrder
	framing  framing
	state    writerState
	cursor   int64 // next free byte
	base     int64 // first byte after the reservation
	sections []*sectionState
	names    map[string]bool
	open     *SectionWriter
	err      error // cause of stateFailed
	file     *tempFile
}

// sectionState tracks a completed section until Finalize.
type sectionState struct {
	name    string
	start   int64
	pre     preamble
	records int
}

// tempFile is the publication state of a writer made by Create.
type tempFile struct {
	f    *os.File
	lock *fileLock
	tmp  string
	path string
}

// NewWriter starts a file on ws. The stream should be empty; anything past
// the finished file's end is truncated when ws supports Truncate.
func NewWriter(ws WriteStream, opts Options) (*Writer, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		s:       newStream(ws, ws, opts),
		opts:    opts,
		log:     opts.Logger,
		header:  Header{Version: opts.Version, Endianness: opts.Endianness},
		order:   opts.Endianness.order(),
		framing: opts.Version.framing(),
		state:   stateOpen,
		names:   make(map[string]bool),
	}

	hdr := w.header.encode()
	clear(hdr[:len(Magic)])
	if err := w.s.write(0, hdr); err != nil {
		return nil, err
	}
	w.base = int64(HeaderSize + opts.IndexReserve)
	if err := w.s.zero(int64(HeaderSize), int64(opts.IndexReserve)); err != nil {
		return nil, err
	}
	w.cursor = w.base
	w.state = stateHeaderWritten
	w.log.Debug("ragfile writer started",
		zap.Stringer("version", opts.Version),
		zap.Stringer("endianness", opts.Endianness),
		zap.Int("index_reserve", opts.IndexReserve))
	return w, nil
}

// Create starts a file that Finalize publishes at path. The file is built
// in path.tmp while an exclusive lock is held; ErrLocked is returned when
// another writer holds it.
func Create(path string, opts Options) (*Writer, error) {
	tmp := path + ".tmp"
	f, lock, err := lockTemp(tmp)
	if err != nil {
		return nil, err
	}
	discard := func() {
		lock.Unlock()
		lock.setFile(nil)
		f.Close()
	}
	// Truncate only after the lock is ours, or a losing writer would
	// destroy the winner's data.
	if err := f.Truncate(0); err != nil {
		discard()
		return nil, fmt.Errorf("create: truncate: %w", err)
	}

	w, err := NewWriter(f, opts)
	if err != nil {
		os.Remove(tmp)
		discard()
		return nil, err
	}
	w.file = &tempFile{f: f, lock: lock, tmp: tmp, path: path}
	return w, nil
}

// lockTemp opens and locks tmp. A handle that loses the name to a rename or
// remove by the previous owner is dropped and the open retried.
func lockTemp(tmp string) (*os.File, *fileLock, error) {
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("create: %w", err)
		}
		lock, err := lockPath(f, tmp)
		if err == nil {
			return f, lock, nil
		}
		f.Close()
		switch {
		case errors.Is(err, errStaleLock) && attempt < maxLockAttempts:
			continue
		case errors.Is(err, ErrLocked), errors.Is(err, errStaleLock):
			return nil, nil, fmt.Errorf("create %s: %w", tmp, ErrLocked)
		default:
			return nil, nil, fmt.Errorf("create: lock: %w", err)
		}
	}
}

// checkName validates a new strategy name. Caller holds w.mu.
func (w *Writer) checkName(name string) error {
	if !validName(name) {
		return errAt(ErrInvalidName, -1, "%q", name)
	}
	if w.names[name] {
		return errAt(ErrDuplicateStrategy, -1, "%q", name)
	}
	return nil
}

// ready reports whether a new section may begin. Caller holds w.mu.
func (w *Writer) ready() error {
	switch {
	case w.state == stateFailed:
		return errAt(ErrWriterState, -1, "writer failed: %v", w.err)
	case w.state != stateHeaderWritten && w.state != stateSectionsWritten:
		return errAt(ErrWriterState, -1, "cannot add a section to a writer in state %s", w.state)
	case w.open != nil:
		return errAt(ErrWriterState, -1, "section %q is still open", w.open.name)
	}
	return nil
}

// fail moves the writer to stateFailed. Caller holds w.mu.
func (w *Writer) fail(op string, err error) error {
	w.state = stateFailed
	w.err = err
	w.opts.Metrics.fail(op)
	w.log.Error("ragfile writer failed", zap.String("op", op), zap.Error(err))
	return err
}

// AddSection writes a complete section. The name, config and every record
// are validated before any byte is written, so a rejected call leaves the
// writer unchanged.
func (w *Writer) AddSection(name string, cfg SectionConfig, records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(name, cfg); err != nil {
		return err
	}
	for i, rec := range records {
		if err := validateRecord(rec, w.framing, cfg, w.opts.MaxRecordSize); err != nil {
			return fmt.Errorf("strategy %q record %d: %w", name, i, err)
		}
	}

	sw, err := w.begin(name, cfg)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := sw.add(rec); err != nil {
			return err
		}
	}
	return sw.close()
}

// BeginSection starts a section whose records are streamed through the
// returned SectionWriter. No other section may begin until it is closed.
func (w *Writer) BeginSection(name string, cfg SectionConfig) (*SectionWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.check(name, cfg); err != nil {
		return nil, err
	}
	return w.begin(name, cfg)
}

// check validates a new section. Caller holds w.mu.
func (w *Writer) check(name string, cfg SectionConfig) error {
	if err := w.ready(); err != nil {
		return err
	}
	if err := w.checkName(name); err != nil {
		return err
	}
	return cfg.validate()
}

// begin writes the provisional preamble of a new section. Caller holds w.mu.
func (w *Writer) begin(name string, cfg SectionConfig) (*SectionWriter, error) {
	start := w.cursor
	fillStart := start + int64(preambleSize(cfg.Kind))
	dataStart := alignUp(fillStart, cfg.Padding)
	pre := preamble{
		kind:      cfg.Kind,
		precision: cfg.Precision,
		dataStart: dataStart,
		dataEnd:   dataStart,
		padding:   cfg.Padding,
	}
	if cfg.Kind != KindEmbedding {
		pre.precision = 0
	}
	if err := w.s.write(start, pre.encode(w.order)); err != nil {
		return nil, w.fail("begin section", err)
	}
	if err := w.s.zero(fillStart, dataStart-fillStart); err != nil {
		return nil, w.fail("begin section", err)
	}

	w.names[name] = true
	w.open = &SectionWriter{
		w:       w,
		name:    name,
		cfg:     cfg,
		start:   start,
		pre:     pre,
		pos:     dataStart,
		flushed: dataStart,
	}
	return w.open, nil
}

// Finalize writes the index table and the magic, then syncs. For writers
// made by Create the finished file is renamed into place and the lock is
// released.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.state == stateFailed:
		return errAt(ErrWriterState, -1, "writer failed: %v", w.err)
	case w.open != nil:
		return errAt(ErrWriterState, -1, "section %q is still open", w.open.name)
	case w.state == stateHeaderWritten:
		return ErrNoSections
	case w.state != stateSectionsWritten:
		return errAt(ErrWriterState, -1, "cannot finalize a writer in state %s", w.state)
	}

	table, delta, err := w.layout()
	if err != nil {
		return w.fail("finalize", err)
	}
	if delta > 0 {
		if err := w.relocate(delta); err != nil {
			return w.fail("finalize", err)
		}
	}

	tableEnd := int64(HeaderSize + len(table))
	first := w.sections[0]
	first.start = tableEnd
	fill := tableEnd + int64(preambleSize(first.pre.kind))
	if err := w.s.write(first.start, first.pre.encode(w.order)); err != nil {
		return w.fail("finalize", err)
	}
	if err := w.s.zero(fill, first.pre.dataStart-fill); err != nil {
		return w.fail("finalize", err)
	}
	if err := w.s.write(int64(HeaderSize), table); err != nil {
		return w.fail("finalize", err)
	}
	w.state = stateIndexPatched

	if t, ok := w.s.wa.(interface{ Truncate(int64) error }); ok {
		if err := t.Truncate(w.cursor); err != nil {
			return w.fail("finalize", &IOError{Op: "truncate", Offset: w.cursor, Attempts: 1, Err: err})
		}
	}
	if err := w.s.write(0, []byte(Magic)); err != nil {
		return w.fail("finalize", err)
	}
	if err := w.s.sync(); err != nil {
		// Best effort: the data may not be durable, so it must not validate.
		_ = w.s.write(0, make([]byte, len(Magic)))
		return w.fail("finalize", err)
	}
	if w.file != nil {
		if err := w.publish(); err != nil {
			return w.fail("finalize", err)
		}
	}
	w.state = stateFinalized
	w.log.Info("ragfile finalized",
		zap.Int("sections", len(w.sections)),
		zap.Int("index_bytes", len(table)),
		zap.Int64("size", w.cursor))
	return nil
}

// layout encodes the table for the current sections and returns it with
// the forward shift the sections need to make room for it. Caller holds w.mu.
//
// The first entry's start is the table's own end, so the table length is
// found by iterating to a fixed point. The length never shrinks as the
// guess grows, so the search converges from below.
func (w *Writer) layout() ([]byte, int64, error) {
	var delta int64
	first := w.sections[0]
	psize := int64(preambleSize(first.pre.kind))
	entries := make([]IndexEntry, len(w.sections))

	for range maxTableIterations {
		tableEnd := int64(HeaderSize)
		var table []byte
		converged := false
		for range maxTableIterations {
			for i, sec := range w.sections {
				entries[i] = IndexEntry{Name: sec.name, Range: Range{sec.start + delta, sec.pre.dataEnd + delta}}
			}
			entries[0].Start = tableEnd
			table = encodeIndex(entries)
			end := int64(HeaderSize + len(table))
			if end == tableEnd {
				converged = true
				break
			}
			tableEnd = end
		}
		if !converged {
			return nil, 0, errAt(ErrCorruptIndex, int64(HeaderSize), "index table length did not converge")
		}
		if int64(len(table)) > MaxIndexSize {
			return nil, 0, errAt(ErrCorruptIndex, int64(HeaderSize), "index table of %d bytes exceeds %d", len(table), MaxIndexSize)
		}

		need := tableEnd + psize - (first.pre.dataStart + delta)
		if need <= 0 {
			return table, delta, nil
		}
		delta += alignUp(need, relocationStep)
	}
	return nil, 0, errAt(ErrCorruptIndex, int64(HeaderSize), "index table does not fit after relocation")
}

// relocate shifts every section forward by delta bytes and rewrites their
// preambles. Caller holds w.mu.
func (w *Writer) relocate(delta int64) error {
	w.log.Info("ragfile relocating sections",
		zap.Int("index_reserve", w.opts.IndexReserve),
		zap.Int64("shift", delta))
	if err := w.s.shift(w.base, w.cursor, delta); err != nil {
		return err
	}
	for _, sec := range w.sections {
		sec.start += delta
		sec.pre.dataStart += delta
		sec.pre.dataEnd += delta
		if err := w.s.write(sec.start, sec.pre.encode(w.order)); err != nil {
			return err
		}
	}
	w.base += delta
	w.cursor += delta
	w.opts.Metrics.relocation()
	return nil
}

// publish moves the finished temp file into place. Caller holds w.mu.
func (w *Writer) publish() error {
	tf := w.file
	w.file = nil
	if renameWhileOpen {
		if err := os.Rename(tf.tmp, tf.path); err != nil {
			os.Remove(tf.tmp)
			tf.close()
			return fmt.Errorf("finalize: rename: %w", err)
		}
		return tf.close()
	}
	if err := tf.close(); err != nil {
		os.Remove(tf.tmp)
		return err
	}
	if err := os.Rename(tf.tmp, tf.path); err != nil {
		os.Remove(tf.tmp)
		return fmt.Errorf("finalize: rename: %w", err)
	}
	return nil
}

func (tf *tempFile) close() error {
	tf.lock.Unlock()
	tf.lock.setFile(nil)
	return tf.f.Close()
}

// Abort abandons the file. The magic was never written, so the stream does
// not validate; a temp file made by Create is removed.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case stateFinalized:
		return errAt(ErrWriterState, -1, "writer already finalized")
	case stateAborted:
		return nil
	}
	w.state = stateAborted
	w.open = nil
	w.log.Debug("ragfile writer aborted", zap.Int("sections", len(w.sections)))
	if w.file == nil {
		return nil
	}
	tf := w.file
	w.file = nil
	// Unlink while the lock is held where the platform allows it, so a
	// writer that locks the name next never has its file removed.
	var err, rerr error
	if renameWhileOpen {
		rerr = os.Remove(tf.tmp)
		err = tf.close()
	} else {
		err = tf.close()
		rerr = os.Remove(tf.tmp)
	}
	if err == nil && !errors.Is(rerr, os.ErrNotExist) {
		err = rerr
	}
	return err
}

// Close releases the writer. A writer that was not finalized is aborted.
func (w *Writer) Close() error {
	w.mu.Lock()
	done := w.state == stateFinalized || w.state == stateAborted
	w.mu.Unlock()
	if done {
		return nil
	}
	return w.Abort()
}

// Strategies returns the names of completed sections in write order.
func (w *Writer) Strategies() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.sections))
	for i, sec := range w.sections {
		names[i] = sec.name
	}
	return names
}

// SectionWriter streams the records of one section.
type SectionWriter struct {
	w       *Writer
	name    string
	cfg     SectionConfig
	start   int64
	pre     preamble
	buf     []byte
	pos     int64 // end of the last encoded record
	flushed int64 // bytes before this offset are on the stream
	records int
	closed  bool
}

// Add appends one record. An invalid record fails the whole writer, since
// the section it belongs to can no longer be completed as requested.
func (sw *SectionWriter) Add(key string, content []byte) error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()
	if err := sw.usable(); err != nil {
		return err
	}
	return sw.add(Record{Key: key, Content: content})
}

// add encodes rec into the section buffer. Caller holds w.mu.
func (sw *SectionWriter) add(rec Record) error {
	w := sw.w
	if err := validateRecord(rec, w.framing, sw.cfg, w.opts.MaxRecordSize); err != nil {
		return w.fail("add record", fmt.Errorf("strategy %q record %d: %w", sw.name, sw.records, err))
	}
	n := len(sw.buf)
	sw.buf = appendRecord(sw.buf, rec, w.framing, sw.cfg.Padding, w.order)
	sw.pos += int64(len(sw.buf) - n)
	sw.records++
	w.opts.Metrics.record(sw.cfg.Kind, true)

	if len(sw.buf) >= chunkSize {
		return sw.flush()
	}
	return nil
}

// Close completes the section and records its final extent.
func (sw *SectionWriter) Close() error {
	sw.w.mu.Lock()
	defer sw.w.mu.Unlock()
	if err := sw.usable(); err != nil {
		return err
	}
	return sw.close()
}

// close flushes the section and rewrites its preamble. Caller holds w.mu.
func (sw *SectionWriter) close() error {
	w := sw.w
	if err := sw.flush(); err != nil {
		return err
	}
	sw.pre.dataEnd = sw.pos
	if err := w.s.write(sw.start, sw.pre.encode(w.order)); err != nil {
		return w.fail("close section", err)
	}

	sw.closed = true
	w.open = nil
	w.cursor = sw.pos
	w.sections = append(w.sections, &sectionState{name: sw.name, start: sw.start, pre: sw.pre, records: sw.records})
	w.state = stateSectionsWritten
	w.opts.Metrics.section()
	w.log.Debug("ragfile section written",
		zap.String("strategy", sw.name),
		zap.Stringer("kind", sw.cfg.Kind),
		zap.Int64("start", sw.start),
		zap.Int64("end", sw.pos),
		zap.Int("records", sw.records))
	return nil
}

// usable reports whether sw may still be written. Caller holds w.mu.
func (sw *SectionWriter) usable() error {
	w := sw.w
	switch {
	case sw.closed:
		return errAt(ErrWriterState, -1, "section %q is closed", sw.name)
	case w.state == stateFailed:
		return errAt(ErrWriterState, -1, "writer failed: %v", w.err)
	case w.open != sw:
		return errAt(ErrWriterState, -1, "section %q is no longer open", sw.name)
	}
	return nil
}

// flush writes buffered records. Caller holds w.mu.
func (sw *SectionWriter) flush() error {
	if len(sw.buf) == 0 {
		return nil
	}
	if err := sw.w.s.write(sw.flushed, sw.buf); err != nil {
		return sw.w.fail("write records", err)
	}
	sw.flushed += int64(len(sw.buf))
	sw.buf = sw.buf[:0]
	return nil
}
