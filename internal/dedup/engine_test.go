package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/rs/zerolog"

	"github.com/streamwatch/radar/internal/classify"
	"github.com/streamwatch/radar/internal/index"
	"github.com/streamwatch/radar/internal/novelty"
	"github.com/streamwatch/radar/internal/retry"
	"github.com/streamwatch/radar/internal/storage"
)

// mockEmbedder returns predetermined embeddings for testing.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no mock vector for %q", text)
		}
		result[i] = vec
	}
	return result, nil
}

func (m *mockEmbedder) Model() string { return "test" }

// mockStore keeps intel in memory with the same merge semantics as SQLite.
type mockStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*storage.IntelItem
}

func newMockStore() *mockStore {
	return &mockStore{nextID: 1, items: make(map[int64]*storage.IntelItem)}
}

func (s *mockStore) FindIntelByFingerprint(fp string, since time.Time) (*storage.IntelItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *storage.IntelItem
	for _, item := range s.items {
		if item.Fingerprint == fp && !item.CreatedAt.Before(since) {
			if best == nil || item.CreatedAt.After(best.CreatedAt) {
				best = item
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (s *mockStore) CreateIntel(item *storage.IntelItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	copied.ID = s.nextID
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.items[copied.ID] = &copied
	s.nextID++
	return copied.ID, nil
}

func (s *mockStore) MergeIntel(intelID int64, url, sourceLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[intelID]
	if !ok {
		return storage.ErrIntelNotFound
	}
	for _, u := range item.RelatedURLs {
		if u == url {
			return nil
		}
	}
	item.RelatedURLs = append(item.RelatedURLs, url)
	item.SourceCount++
	return nil
}

func (s *mockStore) GetIntel(intelID int64) (*storage.IntelItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[intelID]
	if !ok {
		return nil, storage.ErrIntelNotFound
	}
	copied := *item
	return &copied, nil
}

func newTestEngine(store Store, embedder embedding.Embedder) *Engine {
	return NewEngine(store, embedder, index.New(), novelty.NewScorer(0.2, 48*time.Hour),
		Options{
			Threshold:   0.85,
			Lookback:    30 * 24 * time.Hour,
			CallTimeout: 50 * time.Millisecond,
			Retry:       retry.Config{MaxAttempts: 2, Delay: time.Millisecond},
		}, zerolog.Nop())
}

func article(id int64, title, url string) *storage.Article {
	return &storage.Article{
		ID:           id,
		CompetitorID: "acme",
		SourceLabel:  "Acme Blog",
		Title:        title,
		URL:          url,
	}
}

func classification(summary string) *classify.Classification {
	return &classify.Classification{
		Summary:        summary,
		Category:       "product",
		ImpactScore:    7,
		RelevanceScore: 8,
	}
}

func TestProcessCreatesNewIntel(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.": {1, 0, 0},
	}}
	engine := newTestEngine(store, embedder)

	decision, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if decision.Action != ActionCreated {
		t.Fatalf("expected created, got %q", decision.Action)
	}
	if decision.Novelty != 1.0 {
		t.Errorf("expected novelty 1.0 for first-ever item, got %v", decision.Novelty)
	}

	item, err := store.GetIntel(decision.IntelID)
	if err != nil {
		t.Fatalf("GetIntel failed: %v", err)
	}
	if item.SourceCount != 1 || len(item.RelatedURLs) != 1 {
		t.Errorf("new item should have one source, got %d / %v", item.SourceCount, item.RelatedURLs)
	}
	if item.RelatedURLs[0] != "https://acme.example/4k" {
		t.Errorf("seeding URL missing: %v", item.RelatedURLs)
	}
	if len(item.Embedding) == 0 {
		t.Error("expected embedding to be persisted")
	}
}

func TestProcessMergesByFingerprint(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.": {1, 0, 0},
	}}
	engine := newTestEngine(store, embedder)

	first, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Same title and source from a re-crawl, different URL.
	second, err := engine.Process(context.Background(),
		article(2, "Acme ships 4K", "https://mirror.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Action != ActionMerged {
		t.Fatalf("expected merged, got %q", second.Action)
	}
	if second.IntelID != first.IntelID {
		t.Errorf("expected merge into intel %d, got %d", first.IntelID, second.IntelID)
	}
	if second.Novelty != 0.0 {
		t.Errorf("exact repeat must report novelty 0.0, got %v", second.Novelty)
	}

	item, _ := store.GetIntel(first.IntelID)
	if item.SourceCount != 2 {
		t.Errorf("expected source_count 2, got %d", item.SourceCount)
	}
}

func TestProcessMergesBySimilarity(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.":      {1, 0, 0},
		"Acme rolled out 4K video today.": {0.99, 0.14, 0},
	}}
	engine := newTestEngine(store, embedder)

	first, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Different headline and source, same underlying event.
	a := article(2, "Acme rolls out 4K video", "https://wire.example/acme-4k")
	a.SourceLabel = "Industry Wire"
	second, err := engine.Process(context.Background(), a,
		classification("Acme rolled out 4K video today."))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Action != ActionMerged {
		t.Fatalf("expected merged, got %q", second.Action)
	}
	if second.IntelID != first.IntelID {
		t.Errorf("expected merge into intel %d, got %d", first.IntelID, second.IntelID)
	}
	if second.Similarity < 0.85 {
		t.Errorf("expected similarity above threshold, got %v", second.Similarity)
	}
	// A fresh duplicate of a brand-new story has almost no novelty.
	if second.Novelty > 0.05 {
		t.Errorf("expected near-zero novelty for a fresh duplicate, got %v", second.Novelty)
	}
}

func TestProcessDistinctStoriesStaySeparate(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.":   {1, 0, 0},
		"Globex raised its ad prices.": {0, 1, 0},
	}}
	engine := newTestEngine(store, embedder)

	first, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	b := article(2, "Globex ad price hike", "https://globex.example/prices")
	b.CompetitorID = "globex"
	second, err := engine.Process(context.Background(), b,
		classification("Globex raised its ad prices."))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Action != ActionCreated {
		t.Fatalf("expected created, got %q", second.Action)
	}
	if second.IntelID == first.IntelID {
		t.Error("unrelated stories must not share an intel item")
	}
	// Orthogonal vectors: nearest-story similarity is zero, novelty full.
	if second.Novelty != 1.0 {
		t.Errorf("expected novelty 1.0, got %v", second.Novelty)
	}
}

func TestProcessDegradedWhenEmbedFails(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{err: errors.New("ollama is down")}
	engine := newTestEngine(store, embedder)

	decision, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if decision.Action != ActionCreated {
		t.Fatalf("expected created, got %q", decision.Action)
	}
	if !decision.Degraded {
		t.Error("expected degraded decision")
	}
	if decision.Novelty != 0.5 {
		t.Errorf("expected neutral novelty 0.5, got %v", decision.Novelty)
	}

	item, _ := store.GetIntel(decision.IntelID)
	if len(item.Embedding) != 0 {
		t.Error("degraded item must not persist an embedding")
	}

	// Fingerprint dedup still works without embeddings.
	second, err := engine.Process(context.Background(),
		article(2, "Acme ships 4K", "https://mirror.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if second.Action != ActionMerged {
		t.Errorf("expected fingerprint merge in degraded mode, got %q", second.Action)
	}
}

// stallingEmbedder blocks until the call's context expires.
type stallingEmbedder struct{}

func (stallingEmbedder) Embed(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallingEmbedder) Model() string { return "test" }

// flakyEmbedder fails a set number of calls before delegating.
type flakyEmbedder struct {
	mu       sync.Mutex
	failures int
	inner    *mockEmbedder
}

func (f *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, errors.New("transient embed failure")
	}
	f.mu.Unlock()
	return f.inner.Embed(ctx, texts)
}

func (f *flakyEmbedder) Model() string { return "test" }

func TestProcessStalledEmbedFallsBackDegraded(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(store, stallingEmbedder{})

	start := time.Now()
	decision, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if decision.Action != ActionCreated || !decision.Degraded {
		t.Errorf("expected degraded create after a hung embed call, got %+v", decision)
	}
	// Two 50ms attempts plus a 1ms retry delay; allow generous slack.
	if elapsed > time.Second {
		t.Errorf("hung embed call was not bounded by its timeout: Process took %s", elapsed)
	}
}

func TestProcessRetriesTransientEmbedFailure(t *testing.T) {
	store := newMockStore()
	embedder := &flakyEmbedder{failures: 1, inner: &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.": {1, 0, 0},
	}}}
	engine := newTestEngine(store, embedder)

	decision, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if decision.Degraded {
		t.Error("a failure inside the retry budget must not degrade the item")
	}
	if decision.Action != ActionCreated {
		t.Fatalf("expected created, got %q", decision.Action)
	}

	item, _ := store.GetIntel(decision.IntelID)
	if len(item.Embedding) == 0 {
		t.Error("expected embedding to be persisted after a successful retry")
	}
}

func TestProcessCancelledRunDoesNotDegrade(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(store, stallingEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Process(ctx,
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.items) != 0 {
		t.Errorf("cancelled run must not persist a degraded item, found %d", len(store.items))
	}
}

func TestProcessVanishedMergeTargetSkips(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.": {1, 0, 0},
	}}
	engine := newTestEngine(store, embedder)

	if _, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming.")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Simulate the row disappearing between lookup and merge.
	engine2 := newTestEngine(&vanishingStore{mockStore: store}, embedder)
	decision, err := engine2.Process(context.Background(),
		article(2, "Acme ships 4K", "https://mirror.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("Process with vanished target failed: %v", err)
	}
	if decision.Action != ActionSkipped {
		t.Errorf("expected skipped, got %q", decision.Action)
	}
}

// vanishingStore reports a fingerprint match whose row no longer exists.
type vanishingStore struct {
	*mockStore
}

func (s *vanishingStore) MergeIntel(int64, string, string) error {
	return storage.ErrIntelNotFound
}

func TestProcessConcurrentMergesSameItem(t *testing.T) {
	store := newMockStore()
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"Acme shipped 4K streaming.": {1, 0, 0},
	}}
	engine := newTestEngine(store, embedder)

	first, err := engine.Process(context.Background(),
		article(1, "Acme ships 4K", "https://acme.example/4k"),
		classification("Acme shipped 4K streaming."))
	if err != nil {
		t.Fatalf("seed Process failed: %v", err)
	}

	var wg sync.WaitGroup
	const workers = 8
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := article(int64(10+i), "Acme ships 4K",
				fmt.Sprintf("https://mirror%d.example/4k", i))
			_, errs[i] = engine.Process(context.Background(), a,
				classification("Acme shipped 4K streaming."))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent Process %d failed: %v", i, err)
		}
	}

	item, _ := store.GetIntel(first.IntelID)
	if item.SourceCount != 1+workers {
		t.Errorf("expected source_count %d, got %d", 1+workers, item.SourceCount)
	}
	if item.SourceCount != len(item.RelatedURLs) {
		t.Errorf("source_count %d != %d related urls", item.SourceCount, len(item.RelatedURLs))
	}
}
