// Record framing shared by keyword and embedding sections.
//
// A record is a key and an opaque content payload joined by a single '-'
// separator and followed by zero padding, so that the next record starts on
// an absolute file offset that is a multiple of the section's padding.
// Two framings exist, selected by the file's major version:
//
//   - Length framing (1.x): an 8 byte prefix holds the key length and the
//     content length (u32 each, file endianness). The separator is still
//     written and checked, but never searched for, so keys may contain '-'
//     and content may contain or end in zero bytes. Padding only aligns.
//
//   - Delimiter framing (0.1): no prefix. The first zero byte ends the
//     payload and the first '-' splits it. Every record gets at least one
//     byte of padding so the terminator always exists. Keys must not contain
//     '-' and content must not contain zero bytes; the writer rejects both
//     since they would make the record unparseable.
package ragfile

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Separator joins the key and content of every record.
const Separator = '-'

// MaxKeySize is the maximum length of a record key in bytes.
const MaxKeySize = 64 * 1024

// MaxRecordSize is the default maximum encoded record size (16MB).
const MaxRecordSize = 16 * 1024 * 1024

// prefixSize is the length prefix of a length-framed record.
const prefixSize = 8

// Record is one key/content pair. For keyword sections the key is the
// keyword; for embedding sections it is the embedding identifier and the
// content holds the raw vector elements.
type Record struct {
	Key     string
	Content []byte
}

type framing uint8

const (
	framingLength framing = iota
	framingDelimited
)

// size returns the encoded size of rec without padding.
func (f framing) size(rec Record) int {
	n := len(rec.Key) + 1 + len(rec.Content)
	if f == framingLength {
		n += prefixSize
	}
	return n
}

// pad returns the number of zero bytes that follow an n byte record.
func (f framing) pad(n, padding int) int {
	if f == framingDelimited {
		return padding - n%padding
	}
	return (padding - n%padding) % padding
}

// validateRecord checks rec against the framing and section config before
// any byte of it is written.
func validateRecord(rec Record, f framing, cfg SectionConfig, maxSize int) error {
	if rec.Key == "" {
		return errAt(ErrRecordFraming, -1, "empty key")
	}
	if len(rec.Key) > MaxKeySize {
		return errAt(ErrRecordFraming, -1, "key exceeds %d bytes", MaxKeySize)
	}
	if n := f.size(rec); n > maxSize {
		return errAt(ErrRecordFraming, -1, "record %q is %d bytes, limit %d", rec.Key, n, maxSize)
	}
	if f == framingDelimited {
		if strings.IndexByte(rec.Key, Separator) >= 0 {
			return errAt(ErrRecordFraming, -1, "key %q contains the separator", rec.Key)
		}
		if strings.IndexByte(rec.Key, 0) >= 0 || bytes.IndexByte(rec.Content, 0) >= 0 {
			return errAt(ErrRecordFraming, -1, "record %q contains a zero byte", rec.Key)
		}
	}
	if cfg.Kind == KindEmbedding && len(rec.Content)%cfg.Precision.Bytes() != 0 {
		return errAt(ErrRecordFraming, -1, "embedding %q: %d content bytes is not a multiple of %d",
			rec.Key, len(rec.Content), cfg.Precision.Bytes())
	}
	return nil
}

// appendRecord encodes rec followed by its padding.
func appendRecord(dst []byte, rec Record, f framing, padding int, order byteOrder) []byte {
	if f == framingLength {
		dst = order.AppendUint32(dst, uint32(len(rec.Key)))
		dst = order.AppendUint32(dst, uint32(len(rec.Content)))
	}
	dst = append(dst, rec.Key...)
	dst = append(dst, Separator)
	dst = append(dst, rec.Content...)
	for range f.pad(f.size(rec), padding) {
		dst = append(dst, 0)
	}
	return dst
}

// recordReader decodes records of one section.
type recordReader struct {
	s        *stream
	f        framing
	order    byteOrder
	padding  int
	end      int64 // end of the section's record region
	maxSize  int
	elemSize int // embedding element width in bytes, 0 for keyword sections
}

// decode reads the record at pos, which must be aligned, and returns it
// together with the position of the next record.
func (rr *recordReader) decode(pos int64) (Record, int64, error) {
	var (
		rec  Record
		body int64 // end of key+separator+content
		err  error
	)
	if rr.f == framingLength {
		rec, body, err = rr.decodeLength(pos)
	} else {
		rec, body, err = rr.decodeDelimited(pos)
	}
	if err != nil {
		return Record{}, 0, err
	}

	next := body + int64(rr.f.pad(int(body-pos), rr.padding))
	if next > rr.end {
		return Record{}, 0, errAt(ErrBoundary, body, "record %q padding runs to %d past section end %d", rec.Key, next, rr.end)
	}
	if err := rr.checkPadding(body, next); err != nil {
		return Record{}, 0, err
	}
	if rr.elemSize > 0 && len(rec.Content)%rr.elemSize != 0 {
		return Record{}, 0, errAt(ErrRecordFraming, pos, "embedding %q: %d content bytes is not a multiple of %d",
			rec.Key, len(rec.Content), rr.elemSize)
	}
	return rec, next, nil
}

func (rr *recordReader) decodeLength(pos int64) (Record, int64, error) {
	if pos+prefixSize > rr.end {
		return Record{}, 0, errAt(ErrBoundary, pos, "record prefix crosses section end %d", rr.end)
	}
	prefix, err := rr.s.read(pos, prefixSize)
	if err != nil {
		return Record{}, 0, err
	}
	keyLen := int64(rr.order.Uint32(prefix[0:4]))
	contentLen := int64(rr.order.Uint32(prefix[4:8]))
	if keyLen == 0 || keyLen > MaxKeySize {
		return Record{}, 0, errAt(ErrRecordFraming, pos, "key length %d", keyLen)
	}
	n := prefixSize + keyLen + 1 + contentLen
	if n > int64(rr.maxSize) {
		return Record{}, 0, errAt(ErrRecordFraming, pos, "record length %d exceeds limit %d", n, rr.maxSize)
	}
	if pos+n > rr.end {
		return Record{}, 0, errAt(ErrBoundary, pos, "record of %d bytes crosses section end %d", n, rr.end)
	}

	payload, err := rr.s.read(pos+prefixSize, int(n-prefixSize))
	if err != nil {
		return Record{}, 0, err
	}
	if payload[keyLen] != Separator {
		return Record{}, 0, errAt(ErrRecordFraming, pos+prefixSize+keyLen, "expected separator, found %#02x", payload[keyLen])
	}
	return Record{Key: string(payload[:keyLen]), Content: payload[keyLen+1:]}, pos + n, nil
}

// decodeDelimited scans forward from pos for the zero byte that ends the
// payload.
func (rr *recordReader) decodeDelimited(pos int64) (Record, int64, error) {
	var payload []byte
	buf := make([]byte, 4096)
	cur := pos
	for {
		if cur >= rr.end {
			return Record{}, 0, errAt(ErrBoundary, pos, "record has no terminator before section end %d", rr.end)
		}
		step := min(int64(len(buf)), rr.end-cur)
		chunk := buf[:step]
		n, err := rr.s.ReadAt(chunk, cur)
		if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
			if errors.Is(err, io.EOF) {
				return Record{}, 0, errAt(ErrBoundary, cur, "stream ended inside section")
			}
			return Record{}, 0, err
		}
		chunk = chunk[:n]
		if z := bytes.IndexByte(chunk, 0); z >= 0 {
			payload = append(payload, chunk[:z]...)
			break
		}
		payload = append(payload, chunk...)
		if len(payload) > rr.maxSize {
			return Record{}, 0, errAt(ErrRecordFraming, pos, "record exceeds %d bytes", rr.maxSize)
		}
		cur += int64(n)
	}

	sep := bytes.IndexByte(payload, Separator)
	switch {
	case len(payload) == 0:
		return Record{}, 0, errAt(ErrRecordFraming, pos, "empty record")
	case sep < 0:
		return Record{}, 0, errAt(ErrRecordFraming, pos, "record has no separator")
	case sep == 0:
		return Record{}, 0, errAt(ErrRecordFraming, pos, "record has an empty key")
	}
	return Record{Key: string(payload[:sep]), Content: payload[sep+1:]}, pos + int64(len(payload)), nil
}

// checkPadding verifies that [from, to) holds only zero bytes.
func (rr *recordReader) checkPadding(from, to int64) error {
	if to <= from {
		return nil
	}
	pad, err := rr.s.read(from, int(to-from))
	if err != nil {
		return err
	}
	for i, b := range pad {
		if b != 0 {
			return errAt(ErrRecordFraming, from+int64(i), "non-zero padding byte %#02x", b)
		}
	}
	return nil
}
