package index

import (
	"sync"
	"testing"

	embedding "github.com/matthewjhunter/go-embedding"
)

func TestQueryEmpty(t *testing.T) {
	ix := New()
	if got := ix.Query([]float32{1, 0, 0}, 5); got != nil {
		t.Errorf("expected nil matches on empty index, got %v", got)
	}
}

func TestUpsertAndQueryOrdering(t *testing.T) {
	ix := New()
	ix.Upsert(1, []float32{1, 0, 0})
	ix.Upsert(2, []float32{0.9, 0.3, 0})
	ix.Upsert(3, []float32{0, 1, 0})

	matches := ix.Query([]float32{1, 0, 0}, 3)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	if matches[0].IntelID != 1 {
		t.Errorf("best match should be item 1, got %d", matches[0].IntelID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("matches not in descending similarity order at %d", i)
		}
	}
}

func TestQueryTopK(t *testing.T) {
	ix := New()
	ix.Upsert(1, []float32{1, 0})
	ix.Upsert(2, []float32{0, 1})
	matches := ix.Query([]float32{1, 0}, 1)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match with topK=1, got %d", len(matches))
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ix := New()
	ix.Upsert(7, []float32{1, 0})
	ix.Upsert(7, []float32{0, 1})
	if ix.Len() != 1 {
		t.Fatalf("expected 1 entry after re-upsert, got %d", ix.Len())
	}
	matches := ix.Query([]float32{0, 1}, 1)
	if matches[0].Similarity < 0.99 {
		t.Errorf("re-upsert should replace the vector, similarity %f", matches[0].Similarity)
	}
}

func TestDelete(t *testing.T) {
	ix := New()
	ix.Upsert(1, []float32{1, 0})
	ix.Delete(1)
	if ix.Len() != 0 {
		t.Errorf("expected empty index after delete, got %d", ix.Len())
	}
}

func TestLoadSkipsEmptyBlobs(t *testing.T) {
	ix := New()
	ix.Load([]Entry{
		{IntelID: 1, Embedding: embedding.EncodeFloat32s([]float32{1, 0, 0})},
		{IntelID: 2, Embedding: nil},
	})
	if ix.Len() != 1 {
		t.Fatalf("expected 1 loaded entry, got %d", ix.Len())
	}
}

func TestConcurrentUpsertQuery(t *testing.T) {
	ix := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for j := int64(0); j < 50; j++ {
				ix.Upsert(n*100+j, []float32{float32(n), float32(j), 1})
				ix.Query([]float32{1, 1, 1}, 5)
			}
		}(int64(i))
	}
	wg.Wait()
	if ix.Len() != 400 {
		t.Errorf("expected 400 entries, got %d", ix.Len())
	}
}
