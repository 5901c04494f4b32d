// Package index maintains the semantic similarity index over intel
// embeddings. It is process-wide state: loaded once from the store at engine
// start, kept current by the dedup engine as items are created, and persisted
// back through the intel table's embedding column. It is never implicitly
// reset; Reset is an explicit operation.
package index

import (
	"sort"
	"sync"

	embedding "github.com/matthewjhunter/go-embedding"
)

// Match is a single nearest-neighbor result.
type Match struct {
	IntelID    int64
	Similarity float64
}

// Index is an in-memory cosine-similarity index keyed by intel ID.
// All methods are safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	vectors map[int64][]float32
}

// New returns an empty index.
func New() *Index {
	return &Index{vectors: make(map[int64][]float32)}
}

// Entry pairs an intel ID with its stored embedding blob, as read from the
// persistent store.
type Entry struct {
	IntelID   int64
	Embedding []byte
}

// Load replaces the index contents with the given persisted entries.
// Called once at startup; entries with empty blobs are skipped (items
// created in degraded mode have no embedding).
func (ix *Index) Load(entries []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = make(map[int64][]float32, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		ix.vectors[e.IntelID] = embedding.DecodeFloat32s(e.Embedding)
	}
}

// Upsert inserts or replaces the vector for an intel item. Idempotent.
func (ix *Index) Upsert(intelID int64, vec []float32) {
	if len(vec) == 0 {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors[intelID] = vec
}

// Delete removes an item's vector. Not exercised in normal operation since
// intel items are never deleted, but kept for explicit purges.
func (ix *Index) Delete(intelID int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.vectors, intelID)
}

// Query returns up to topK matches ordered by descending cosine similarity.
// Each call scans fresh state; results are a snapshot, not a cursor.
func (ix *Index) Query(vec []float32, topK int) []Match {
	if len(vec) == 0 || topK <= 0 {
		return nil
	}
	ix.mu.RLock()
	matches := make([]Match, 0, len(ix.vectors))
	for id, v := range ix.vectors {
		matches = append(matches, Match{
			IntelID:    id,
			Similarity: embedding.CosineSimilarity(vec, v),
		})
	}
	ix.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].IntelID < matches[j].IntelID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Len reports the number of indexed items.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// Reset drops every vector. Callers are expected to log the operation.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.vectors = make(map[int64][]float32)
}
