// Section layout.
//
// Every section begins with a preamble at the start offset recorded in the
// index table. The first byte is the section kind, which makes the set of
// section types an open tagged union: a reader that does not recognise a
// kind can still skip or copy the section using only its index range.
//
//	keyword:   kind u8 | dataStart u64 | dataEnd u64 | padding u8
//	embedding: kind u8 | precision u8 | dataStart u64 | dataEnd u64 | padding u8
//
// The preamble is followed by zero fill up to dataStart, which is aligned to
// the padding, and then by the records. dataEnd always equals the section's
// end in the index table. Repeating the record region inside the section
// keeps each section self-describing and lets the reader cross-check the
// table against the bytes it points at.
package ragfile

import "fmt"

// Kind identifies how a section's records are encoded.
type Kind uint8

// Section kinds understood by this package. Other values may appear in
// files written by newer versions; such sections are listed but their
// records cannot be iterated.
const (
	KindKeyword   Kind = 1
	KindEmbedding Kind = 2
)

// Known reports whether this package can decode records of kind k.
func (k Kind) Known() bool { return k == KindKeyword || k == KindEmbedding }

func (k Kind) String() string {
	switch k {
	case KindKeyword:
		return "keyword"
	case KindEmbedding:
		return "embedding"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Precision is the bit width of embedding vector elements.
type Precision uint8

// Supported embedding precisions (IEEE 754 binary16/32/64).
const (
	Float16 Precision = 16
	Float32 Precision = 32
	Float64 Precision = 64
)

// Valid reports whether p is a supported precision code.
func (p Precision) Valid() bool { return p == Float16 || p == Float32 || p == Float64 }

// Bytes returns the size of one vector element.
func (p Precision) Bytes() int { return int(p) / 8 }

// validPadding reports whether p is an allowed record alignment.
func validPadding(p int) bool { return p == 4 || p == 8 || p == 16 }

// SectionConfig describes how a section is encoded.
type SectionConfig struct {
	Kind      Kind
	Padding   int       // record alignment: 4, 8 or 16
	Precision Precision // embedding sections only
}

// validate checks the config before the section is written.
func (c SectionConfig) validate() error {
	if !c.Kind.Known() {
		return errAt(ErrUnsupportedSection, -1, "%s", c.Kind)
	}
	if !validPadding(c.Padding) {
		return errAt(ErrPaddingConstraint, -1, "padding %d", c.Padding)
	}
	if c.Kind == KindEmbedding && !c.Precision.Valid() {
		return errAt(ErrUnsupportedPrecision, -1, "precision %d", c.Precision)
	}
	return nil
}

// preamble is the decoded head of a section.
type preamble struct {
	kind      Kind
	precision Precision
	dataStart int64
	dataEnd   int64
	padding   int
}

// preambleSize returns the encoded preamble length for kind.
func preambleSize(k Kind) int {
	if k == KindEmbedding {
		return 19
	}
	return 18
}

func (p preamble) encode(order byteOrder) []byte {
	buf := make([]byte, 0, preambleSize(p.kind))
	buf = append(buf, byte(p.kind))
	if p.kind == KindEmbedding {
		buf = append(buf, byte(p.precision))
	}
	buf = order.AppendUint64(buf, uint64(p.dataStart))
	buf = order.AppendUint64(buf, uint64(p.dataEnd))
	return append(buf, byte(p.padding))
}

// config returns the section config the preamble was written with.
func (p preamble) config() SectionConfig {
	return SectionConfig{Kind: p.kind, Padding: p.padding, Precision: p.precision}
}

// alignUp rounds n up to a multiple of a.
func alignUp(n int64, a int) int64 {
	r := n % int64(a)
	if r == 0 {
		return n
	}
	return n + int64(a) - r
}

// decodePreamble reads and validates the preamble of the section at rng.
// Unknown kinds return a preamble with only the kind set.
func decodePreamble(s *stream, rng Range, order byteOrder) (preamble, error) {
	head, err := s.read(rng.Start, 1)
	if err != nil {
		return preamble{}, err
	}
	p := preamble{kind: Kind(head[0])}
	if !p.kind.Known() {
		return p, nil
	}

	size := preambleSize(p.kind)
	if rng.Len() < int64(size) {
		return preamble{}, errAt(ErrBoundary, rng.Start, "%d byte section cannot hold a %s preamble", rng.Len(), p.kind)
	}
	buf, err := s.read(rng.Start, size)
	if err != nil {
		return preamble{}, err
	}

	at := rng.Start + 1
	b := buf[1:]
	if p.kind == KindEmbedding {
		p.precision = Precision(b[0])
		if !p.precision.Valid() {
			return preamble{}, errAt(ErrUnsupportedPrecision, at, "precision %d", b[0])
		}
		at++
		b = b[1:]
	}
	p.dataStart = int64(order.Uint64(b[0:8]))
	p.dataEnd = int64(order.Uint64(b[8:16]))
	p.padding = int(b[16])
	if !validPadding(p.padding) {
		return preamble{}, errAt(ErrPaddingConstraint, at+16, "padding %d", p.padding)
	}

	switch {
	case p.dataEnd != rng.End:
		return preamble{}, errAt(ErrBoundary, at+8, "record region ends at %d, index says %d", p.dataEnd, rng.End)
	case p.dataStart < rng.Start+int64(size) || p.dataStart > p.dataEnd:
		return preamble{}, errAt(ErrBoundary, at, "record region starts at %d outside section [%d,%d)", p.dataStart, rng.Start, rng.End)
	case p.dataStart%int64(p.padding) != 0:
		return preamble{}, errAt(ErrBoundary, at, "record region start %d is not aligned to %d", p.dataStart, p.padding)
	}

	fillStart := rng.Start + int64(size)
	if fill := p.dataStart - fillStart; fill > 0 {
		b, err := s.read(fillStart, int(fill))
		if err != nil {
			return preamble{}, err
		}
		for i, c := range b {
			if c != 0 {
				return preamble{}, errAt(ErrRecordFraming, fillStart+int64(i), "non-zero section fill byte %#02x", c)
			}
		}
	}
	return p, nil
}
