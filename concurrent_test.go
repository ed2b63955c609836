package ragfile

import (
	"fmt"
	"sync"
	"testing"
)

func TestConcurrentCursors(t *testing.T) {
	var recs []Record
	for i := range 200 {
		recs = append(recs, Record{Key: fmt.Sprintf("k%03d", i), Content: []byte(fmt.Sprintf("content %d", i))})
	}
	buf := buildFile(t, Options{}, testSection{"keyword", keywordCfg, recs})
	r := openBuffer(t, buf)
	sec, err := r.Open("keyword")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				c := sec.Cursor()
				i := 0
				for c.Next() {
					if c.Record().Key != recs[i].Key {
						t.Errorf("record %d = %q, want %q", i, c.Record().Key, recs[i].Key)
						return
					}
					i++
				}
				if c.Err() != nil || i != len(recs) {
					t.Errorf("scan stopped at %d: %v", i, c.Err())
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentSearch(t *testing.T) {
	buf := buildFile(t, Options{},
		testSection{"keyword", keywordCfg, animals},
		testSection{"titles", keywordCfg, animals},
	)
	r := openBuffer(t, buf)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				n := 0
				for _, err := range r.Search("dog", SearchOptions{}) {
					if err != nil {
						t.Errorf("Search: %v", err)
						return
					}
					n++
				}
				if n != 2 {
					t.Errorf("got %d matches, want 2", n)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentSectionWrites(t *testing.T) {
	w, buf := newBufferWriter(t)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("s%d", i)
			if err := w.AddSection(name, keywordCfg, animals); err != nil {
				t.Errorf("AddSection(%s): %v", name, err)
			}
		}()
	}
	wg.Wait()
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r := openBuffer(t, buf)
	if r.Index().Len() != 8 {
		t.Fatalf("Len = %d, want 8", r.Index().Len())
	}
	for _, name := range r.Strategies() {
		equalRecords(t, readAll(t, r, name), animals)
	}
}
