// Keyword lookup.
//
// Keyword sections map a keyword to the content it indexes. Lookup is an
// exact match on the record key, scanning the section front to back;
// there is no ordering within a section to exploit. Search runs the same
// match over every keyword section of a file. Ranking and fuzzy matching
// belong to the caller.
//
// Both stream through the file record by record. Callers consume results
// lazily via range and can break early to stop the scan without reading
// the rest of the section.
package ragfile

import (
	"iter"
	"strings"
)

// SearchOptions configures Search and Lookup behaviour. Callers control
// result count by breaking out of the range loop.
type SearchOptions struct {
	CaseSensitive bool
	Prefix        bool // match keys that start with the keyword
}

// Match is a single search result.
type Match struct {
	Strategy string
	Offset   int64 // absolute offset of the record
	Record   Record
}

func (o SearchOptions) matcher(keyword string) func(string) bool {
	switch {
	case o.Prefix && o.CaseSensitive:
		return func(k string) bool { return strings.HasPrefix(k, keyword) }
	case o.Prefix:
		return func(k string) bool {
			return len(k) >= len(keyword) && strings.EqualFold(k[:len(keyword)], keyword)
		}
	case o.CaseSensitive:
		return func(k string) bool { return k == keyword }
	default:
		return func(k string) bool { return strings.EqualFold(k, keyword) }
	}
}

// Lookup yields the records of a keyword section whose key matches keyword.
func (s *Section) Lookup(keyword string, opts SearchOptions) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		if s.pre.kind != KindKeyword {
			yield(Match{}, errAt(ErrUnsupportedSection, s.entry.Start, "strategy %q is a %s section", s.entry.Name, s.pre.kind))
			return
		}
		s.lookup(opts.matcher(keyword), yield)
	}
}

// lookup scans s and reports whether the scan should continue. A decode
// error ends it regardless of what yield returns.
func (s *Section) lookup(match func(string) bool, yield func(Match, error) bool) bool {
	c := s.Cursor()
	for c.Next() {
		rec := c.Record()
		if match(rec.Key) {
			if !yield(Match{Strategy: s.entry.Name, Offset: c.Offset(), Record: rec}, nil) {
				return false
			}
		}
	}
	if err := c.Err(); err != nil {
		yield(Match{}, err)
		return false
	}
	return true
}

// Search runs Lookup over every keyword section in table order. Sections
// of other kinds are skipped.
func (r *Reader) Search(keyword string, opts SearchOptions) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		match := opts.matcher(keyword)
		for sec, err := range r.Sections() {
			if err != nil {
				yield(Match{}, err)
				return
			}
			if sec.Kind() != KindKeyword {
				continue
			}
			if !sec.lookup(match, yield) {
				return
			}
		}
	}
}
