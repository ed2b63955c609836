// Header management for the container file.
//
// The header is exactly 11 bytes: the ASCII magic "RAGFILE", one byte each
// for the major, minor and patch version, and one endianness byte. The
// endianness byte decides how every multi-byte integer after the header is
// read. The writer leaves the magic zeroed until the file is finalized, so
// a file abandoned mid-write never validates.
package ragfile

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies a RAGFile. It occupies the first bytes of every file.
const Magic = "RAGFILE"

// HeaderSize is the fixed size of the header in bytes.
const HeaderSize = len(Magic) + 3 + 1

// Endianness selects the byte order of multi-byte integers in a file.
type Endianness uint8

// Endianness values as stored in the header.
const (
	LittleEndian Endianness = 0
	BigEndian    Endianness = 1
)

func (e Endianness) valid() bool { return e == LittleEndian || e == BigEndian }

// byteOrder reads and appends multi-byte integers in one byte order.
type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func (e Endianness) order() byteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endianness) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("endianness(%d)", uint8(e))
	}
}

// Version is the format version stored in the header.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint8
}

// Known format versions. Major version 1 frames every record with explicit
// key and content lengths. Version 0.1 is the original delimiter-framed
// layout where zero padding alone ends a record.
var (
	CurrentVersion   = Version{1, 0, 0}
	DelimitedVersion = Version{0, 1, 0}
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool { return v == Version{} }

// supported reports whether files of this version can be read. degraded is
// set for 1.x files newer than CurrentVersion: their layout is readable but
// features added after CurrentVersion are ignored.
func (v Version) supported() (ok, degraded bool) {
	switch v.Major {
	case 1:
		return true, v.Minor > CurrentVersion.Minor
	case 0:
		return v.Minor == DelimitedVersion.Minor, false
	default:
		return false, false
	}
}

// writable reports whether the Writer can produce files of this version.
func (v Version) writable() bool {
	return v.Major == CurrentVersion.Major && v.Minor <= CurrentVersion.Minor ||
		v.Major == DelimitedVersion.Major && v.Minor == DelimitedVersion.Minor
}

func (v Version) framing() framing {
	if v.Major == 0 {
		return framingDelimited
	}
	return framingLength
}

// Header is the decoded file header.
type Header struct {
	Version    Version
	Endianness Endianness
}

// encode serialises the header to exactly HeaderSize bytes.
func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	n := copy(buf, Magic)
	buf[n] = h.Version.Major
	buf[n+1] = h.Version.Minor
	buf[n+2] = h.Version.Patch
	buf[n+3] = byte(h.Endianness)
	return buf
}

// decodeHeader parses and validates the first HeaderSize bytes of a file.
func decodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, errAt(ErrFormat, int64(len(buf)), "file shorter than %d byte header", HeaderSize)
	}
	for i := range len(Magic) {
		if buf[i] != Magic[i] {
			return Header{}, errAt(ErrFormat, int64(i), "bad magic %q", buf[:len(Magic)])
		}
	}

	n := len(Magic)
	h := Header{
		Version:    Version{buf[n], buf[n+1], buf[n+2]},
		Endianness: Endianness(buf[n+3]),
	}
	if ok, _ := h.Version.supported(); !ok {
		return Header{}, errAt(ErrUnsupportedVersion, int64(n), "version %s", h.Version)
	}
	if !h.Endianness.valid() {
		return Header{}, errAt(ErrFormat, int64(n+3), "endianness byte %d", buf[n+3])
	}
	return h, nil
}
