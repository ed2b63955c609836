// Embedding content helpers.
//
// Embedding records carry the raw vector elements as their content:
// precision/8 bytes per element in the file's byte order. The helpers
// below convert between that layout and float slices. Similarity and
// ranking are left to callers.
package ragfile

import (
	"math"

	"github.com/x448/float16"
)

// EncodeVector packs values at precision p in the byte order e. Values are
// rounded to the nearest representable element.
func EncodeVector(values []float64, p Precision, e Endianness) ([]byte, error) {
	if !p.Valid() {
		return nil, errAt(ErrUnsupportedPrecision, -1, "precision %d", p)
	}
	order := e.order()
	buf := make([]byte, 0, len(values)*p.Bytes())
	for _, v := range values {
		switch p {
		case Float16:
			buf = order.AppendUint16(buf, float16.Fromfloat32(float32(v)).Bits())
		case Float32:
			buf = order.AppendUint32(buf, math.Float32bits(float32(v)))
		case Float64:
			buf = order.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf, nil
}

// DecodeVector unpacks embedding content written at precision p.
func DecodeVector(content []byte, p Precision, e Endianness) ([]float64, error) {
	if !p.Valid() {
		return nil, errAt(ErrUnsupportedPrecision, -1, "precision %d", p)
	}
	size := p.Bytes()
	if len(content)%size != 0 {
		return nil, errAt(ErrRecordFraming, -1, "%d content bytes is not a multiple of %d", len(content), size)
	}
	return decodeVector(content, p, e.order()), nil
}

func decodeVector(content []byte, p Precision, order byteOrder) []float64 {
	size := p.Bytes()
	out := make([]float64, len(content)/size)
	for i := range out {
		b := content[i*size : (i+1)*size]
		switch p {
		case Float16:
			out[i] = float64(float16.Frombits(order.Uint16(b)).Float32())
		case Float32:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case Float64:
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out
}

// Vector decodes the content of a record read from an embedding section.
func (s *Section) Vector(rec Record) ([]float64, error) {
	if s.pre.kind != KindEmbedding {
		return nil, errAt(ErrUnsupportedSection, s.entry.Start, "strategy %q is a %s section", s.entry.Name, s.pre.kind)
	}
	return DecodeVector(rec.Content, s.pre.precision, s.r.header.Endianness)
}
