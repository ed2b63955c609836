package ragfile

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderSize(t *testing.T) {
	if HeaderSize != 11 {
		t.Errorf("HeaderSize = %d, want 11", HeaderSize)
	}
}

func TestHeaderEncode(t *testing.T) {
	h := Header{Version: Version{1, 2, 3}, Endianness: BigEndian}
	want := []byte{'R', 'A', 'G', 'F', 'I', 'L', 'E', 1, 2, 3, 1}
	if got := h.encode(); !bytes.Equal(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, h := range []Header{
		{Version: CurrentVersion, Endianness: LittleEndian},
		{Version: CurrentVersion, Endianness: BigEndian},
		{Version: DelimitedVersion, Endianness: LittleEndian},
		{Version: Version{1, 9, 0}, Endianness: BigEndian},
	} {
		got, err := decodeHeader(h.encode())
		if err != nil {
			t.Errorf("decodeHeader(%+v): %v", h, err)
			continue
		}
		if got != h {
			t.Errorf("decodeHeader = %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	valid := Header{Version: CurrentVersion}.encode()
	with := func(i int, b byte) []byte {
		buf := bytes.Clone(valid)
		buf[i] = b
		return buf
	}

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"short", valid[:10], ErrFormat},
		{"zeroed magic", append(make([]byte, len(Magic)), 1, 0, 0, 0), ErrFormat},
		{"lowercase magic", append([]byte("ragfile"), 1, 0, 0, 0), ErrFormat},
		{"major 2", with(7, 2), ErrUnsupportedVersion},
		{"version 0.0", append([]byte(Magic), 0, 0, 0, 0), ErrUnsupportedVersion},
		{"endianness 2", with(10, 2), ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeHeader(tt.buf); !errors.Is(err, tt.want) {
				t.Errorf("decodeHeader = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVersionSupport(t *testing.T) {
	tests := []struct {
		v                  Version
		ok, degraded, save bool
	}{
		{Version{1, 0, 0}, true, false, true},
		{Version{1, 0, 7}, true, false, true},
		{Version{1, 3, 0}, true, true, false},
		{Version{0, 1, 0}, true, false, true},
		{Version{0, 1, 4}, true, false, true},
		{Version{0, 2, 0}, false, false, false},
		{Version{2, 0, 0}, false, false, false},
	}
	for _, tt := range tests {
		ok, degraded := tt.v.supported()
		if ok != tt.ok || degraded != tt.degraded {
			t.Errorf("%v.supported() = %v, %v; want %v, %v", tt.v, ok, degraded, tt.ok, tt.degraded)
		}
		if got := tt.v.writable(); got != tt.save {
			t.Errorf("%v.writable() = %v, want %v", tt.v, got, tt.save)
		}
	}
}

func TestVersionFraming(t *testing.T) {
	if CurrentVersion.framing() != framingLength {
		t.Error("1.x should use length framing")
	}
	if DelimitedVersion.framing() != framingDelimited {
		t.Error("0.1 should use delimiter framing")
	}
}

func TestVersionString(t *testing.T) {
	if s := (Version{1, 2, 3}).String(); s != "1.2.3" {
		t.Errorf("String = %q, want 1.2.3", s)
	}
	if !(Version{}).IsZero() || CurrentVersion.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestEndiannessString(t *testing.T) {
	for e, want := range map[Endianness]string{LittleEndian: "little", BigEndian: "big", 5: "endianness(5)"} {
		if got := e.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", e, got, want)
		}
	}
}
