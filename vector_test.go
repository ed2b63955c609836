package ragfile

import (
	"errors"
	"math"
	"testing"
)

func TestVectorRoundTrip(t *testing.T) {
	values := []float64{0, 1, -2, 0.5, 1.5, -0.25, 1024}
	for _, p := range []Precision{Float16, Float32, Float64} {
		for _, e := range []Endianness{LittleEndian, BigEndian} {
			b, err := EncodeVector(values, p, e)
			if err != nil {
				t.Fatalf("EncodeVector(%d, %v): %v", p, e, err)
			}
			if len(b) != len(values)*p.Bytes() {
				t.Errorf("%d/%v: %d bytes, want %d", p, e, len(b), len(values)*p.Bytes())
			}
			got, err := DecodeVector(b, p, e)
			if err != nil {
				t.Fatalf("DecodeVector: %v", err)
			}
			for i := range values {
				if got[i] != values[i] {
					t.Errorf("%d/%v: got[%d] = %v, want %v", p, e, i, got[i], values[i])
				}
			}
		}
	}
}

func TestVectorRounding(t *testing.T) {
	b, _ := EncodeVector([]float64{math.Pi}, Float32, LittleEndian)
	got, _ := DecodeVector(b, Float32, LittleEndian)
	if got[0] != float64(float32(math.Pi)) {
		t.Errorf("float32 pi = %v", got[0])
	}

	b, _ = EncodeVector([]float64{math.Pi}, Float16, LittleEndian)
	got, _ = DecodeVector(b, Float16, LittleEndian)
	if math.Abs(got[0]-math.Pi) > 0.002 {
		t.Errorf("float16 pi = %v", got[0])
	}
}

func TestVectorErrors(t *testing.T) {
	if _, err := EncodeVector([]float64{1}, 24, LittleEndian); !errors.Is(err, ErrUnsupportedPrecision) {
		t.Errorf("EncodeVector(24) = %v", err)
	}
	if _, err := DecodeVector(make([]byte, 4), 8, LittleEndian); !errors.Is(err, ErrUnsupportedPrecision) {
		t.Errorf("DecodeVector(8) = %v", err)
	}
	if _, err := DecodeVector(make([]byte, 6), Float32, LittleEndian); !errors.Is(err, ErrRecordFraming) {
		t.Errorf("DecodeVector(6 bytes) = %v", err)
	}
}

func TestSectionVector(t *testing.T) {
	content, _ := EncodeVector([]float64{0.5, -1}, Float16, BigEndian)
	buf := buildFile(t, Options{Endianness: BigEndian},
		testSection{"vector", SectionConfig{Kind: KindEmbedding, Padding: 4, Precision: Float16}, []Record{{Key: "e1", Content: content}}},
		testSection{"keyword", keywordCfg, animals},
	)
	r := openBuffer(t, buf)

	sec, _ := r.Open("vector")
	recs := readAll(t, r, "vector")
	v, err := sec.Vector(recs[0])
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if len(v) != 2 || v[0] != 0.5 || v[1] != -1 {
		t.Errorf("Vector = %v, want [0.5 -1]", v)
	}

	kw, _ := r.Open("keyword")
	if _, err := kw.Vector(animals[0]); !errors.Is(err, ErrUnsupportedSection) {
		t.Errorf("Vector on keyword section = %v, want ErrUnsupportedSection", err)
	}
}
