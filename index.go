// The strategy index table.
//
// The table follows the header directly. Each entry is the ASCII text
// {name}-({start},{end}) with absolute decimal offsets, and consecutive
// entries are separated by exactly one zero byte. There is no separator
// after the last entry and no length field: the table ends where the
// first section begins, which is the smallest start offset among its own
// entries. A reader therefore stops as soon as its cursor reaches the
// smallest start seen so far.
package ragfile

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

// MaxNameSize is the longest permitted strategy name in bytes.
const MaxNameSize = 255

// MaxIndexSize bounds how far a reader scans for the end of the table.
const MaxIndexSize = 1 << 20

// Range is a half-open byte range [Start, End) of a file.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in r.
func (r Range) Len() int64 { return r.End - r.Start }

// Contains reports whether o lies entirely inside r.
func (r Range) Contains(o Range) bool { return o.Start >= r.Start && o.End <= r.End }

// IndexEntry locates the section of one strategy.
type IndexEntry struct {
	Name string
	Range
}

// Index is the parsed strategy table in file order.
type Index struct {
	entries []IndexEntry
	byName  map[string]int
}

func newIndex(entries []IndexEntry) *Index {
	ix := &Index{entries: entries, byName: make(map[string]int, len(entries))}
	for i, e := range entries {
		ix.byName[e.Name] = i
	}
	return ix
}

// Entries returns a copy of the entries in table order.
func (ix *Index) Entries() []IndexEntry {
	return append([]IndexEntry(nil), ix.entries...)
}

// Names returns the strategy names in table order.
func (ix *Index) Names() []string {
	names := make([]string, len(ix.entries))
	for i, e := range ix.entries {
		names[i] = e.Name
	}
	return names
}

// Lookup returns the entry for name.
func (ix *Index) Lookup(name string) (IndexEntry, bool) {
	i, ok := ix.byName[name]
	if !ok {
		return IndexEntry{}, false
	}
	return ix.entries[i], true
}

// Len returns the number of entries.
func (ix *Index) Len() int { return len(ix.entries) }

// validName reports whether name can be stored in the table. Names are
// restricted to [A-Za-z0-9_.] so the "-(" delimiter, commas, parentheses
// and zero bytes can never appear inside one.
func validName(name string) bool {
	if name == "" || len(name) > MaxNameSize {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// encodeIndex serialises entries in order, one zero byte between entries.
func encodeIndex(entries []IndexEntry) []byte {
	var buf []byte
	for i, e := range entries {
		if i > 0 {
			buf = append(buf, 0)
		}
		buf = appendEntry(buf, e)
	}
	return buf
}

func appendEntry(buf []byte, e IndexEntry) []byte {
	buf = append(buf, e.Name...)
	buf = append(buf, "-("...)
	buf = strconv.AppendInt(buf, e.Start, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, e.End, 10)
	return append(buf, ')')
}

// parseEntry parses one "{name}-({start},{end})" entry. off is the
// absolute position of b, used for error reporting.
func parseEntry(b []byte, off int64) (IndexEntry, error) {
	open := bytes.Index(b, []byte("-("))
	if open <= 0 || b[len(b)-1] != ')' {
		return IndexEntry{}, errAt(ErrCorruptIndex, off, "malformed entry %q", b)
	}
	name := string(b[:open])
	if !validName(name) {
		return IndexEntry{}, errAt(ErrCorruptIndex, off, "invalid strategy name %q", name)
	}

	nums := b[open+2 : len(b)-1]
	comma := bytes.IndexByte(nums, ',')
	if comma < 0 {
		return IndexEntry{}, errAt(ErrCorruptIndex, off, "entry %q has no end offset", name)
	}
	start, ok1 := parseOffset(nums[:comma])
	end, ok2 := parseOffset(nums[comma+1:])
	if !ok1 || !ok2 {
		return IndexEntry{}, errAt(ErrCorruptIndex, off, "entry %q has malformed offsets %q", name, nums)
	}
	if start >= end {
		return IndexEntry{}, errAt(ErrCorruptIndex, off, "entry %q: start %d >= end %d", name, start, end)
	}
	return IndexEntry{Name: name, Range: Range{start, end}}, nil
}

// parseOffset accepts unsigned decimal digits only.
func parseOffset(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 19 {
		return 0, false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	return n, err == nil
}

// decodeIndex reads the table that starts at HeaderSize in a file of the
// given size. It stops when the cursor reaches the smallest start offset
// among the entries parsed so far and returns the table end.
func decodeIndex(r io.ReaderAt, size int64) (*Index, int64, error) {
	limit := min(size, int64(HeaderSize)+MaxIndexSize) - int64(HeaderSize)
	if limit <= 0 {
		return nil, 0, errAt(ErrCorruptIndex, int64(HeaderSize), "file has no index table")
	}
	br := bufio.NewReader(io.NewSectionReader(r, int64(HeaderSize), limit))

	var entries []IndexEntry
	seen := make(map[string]bool)
	pos := int64(HeaderSize)
	minStart := int64(-1)

	for {
		raw, err := br.ReadSlice(')')
		if err != nil {
			return nil, 0, indexReadErr(err, pos+int64(len(raw)))
		}
		e, err := parseEntry(raw, pos)
		if err != nil {
			return nil, 0, err
		}
		if seen[e.Name] {
			return nil, 0, errAt(ErrCorruptIndex, pos, "duplicate strategy %q", e.Name)
		}
		seen[e.Name] = true
		entries = append(entries, e)
		pos += int64(len(raw))

		if minStart < 0 || e.Start < minStart {
			minStart = e.Start
		}
		switch {
		case pos == minStart:
			return checkBounds(newIndex(entries), size, pos)
		case pos > minStart:
			return nil, 0, errAt(ErrCorruptIndex, pos, "a section starts at %d, inside the table", minStart)
		}

		sep, err := br.ReadByte()
		if err != nil {
			return nil, 0, indexReadErr(err, pos)
		}
		if sep != 0 {
			return nil, 0, errAt(ErrCorruptIndex, pos, "expected zero separator, found %#02x", sep)
		}
		pos++
		if pos >= minStart {
			return nil, 0, errAt(ErrCorruptIndex, pos-1, "separator after the last entry")
		}
	}
}

// indexReadErr classifies a failure to read the next table bytes.
func indexReadErr(err error, pos int64) error {
	if errors.Is(err, io.EOF) {
		return errAt(ErrCorruptIndex, pos, "table runs past the end of the file")
	}
	if errors.Is(err, bufio.ErrBufferFull) {
		return errAt(ErrCorruptIndex, pos, "unterminated entry")
	}
	return err
}

// checkBounds rejects entries that extend past the end of the file, which
// happens when a file is truncated.
func checkBounds(ix *Index, size, end int64) (*Index, int64, error) {
	for _, e := range ix.entries {
		if e.End > size {
			return nil, 0, errAt(ErrBoundary, size, "section %q ends at %d beyond file size %d", e.Name, e.End, size)
		}
	}
	return ix, end, nil
}
