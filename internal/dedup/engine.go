// Package dedup decides whether a classified article is new intelligence or
// another report of something already tracked.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/rs/zerolog"

	"github.com/streamwatch/radar/internal/classify"
	"github.com/streamwatch/radar/internal/fingerprint"
	"github.com/streamwatch/radar/internal/index"
	"github.com/streamwatch/radar/internal/novelty"
	"github.com/streamwatch/radar/internal/retry"
	"github.com/streamwatch/radar/internal/storage"
)

// mergeStripes bounds the number of per-item locks. Merges to the same intel
// item serialize; merges to different items almost always proceed in parallel.
const mergeStripes = 64

// Decision actions.
const (
	ActionCreated = "created"
	ActionMerged  = "merged"
	ActionSkipped = "skipped"
)

// Decision records what the engine did with one article.
type Decision struct {
	Action     string
	IntelID    int64
	Novelty    float64
	Similarity float64
	Degraded   bool
}

// Store is the slice of the persistence layer the engine needs.
type Store interface {
	FindIntelByFingerprint(fp string, since time.Time) (*storage.IntelItem, error)
	CreateIntel(item *storage.IntelItem) (int64, error)
	MergeIntel(intelID int64, url, sourceLabel string) error
	GetIntel(intelID int64) (*storage.IntelItem, error)
}

// Options bundles the engine's tuning knobs.
type Options struct {
	Threshold   float64       // minimum similarity for a merge
	Lookback    time.Duration // how far back duplicates are matched
	CallTimeout time.Duration // per-attempt budget for embedding calls
	Retry       retry.Config
}

// Engine matches incoming articles against tracked intel by fingerprint and
// embedding similarity, merging duplicates and creating new items with a
// time-decayed novelty score.
type Engine struct {
	store       Store
	embedder    embedding.Embedder
	idx         *index.Index
	scorer      *novelty.Scorer
	threshold   float64
	lookback    time.Duration
	callTimeout time.Duration
	retryCfg    retry.Config
	logger      zerolog.Logger

	stripes [mergeStripes]sync.Mutex
}

// NewEngine wires a dedup engine. The index must already be loaded with
// persisted embeddings for the lookback window.
func NewEngine(store Store, embedder embedding.Embedder, idx *index.Index,
	scorer *novelty.Scorer, opts Options, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		embedder:    embedder,
		idx:         idx,
		scorer:      scorer,
		threshold:   opts.Threshold,
		lookback:    opts.Lookback,
		callTimeout: opts.CallTimeout,
		retryCfg:    opts.Retry,
		logger:      logger,
	}
}

// Process runs one classified article through the dedup decision.
func (e *Engine) Process(ctx context.Context, article *storage.Article, c *classify.Classification) (*Decision, error) {
	now := time.Now()
	since := now.Add(-e.lookback)
	fp := fingerprint.Hash(article.Title, article.SourceLabel)

	// Exact fingerprint repeat inside the window merges without any
	// embedding work. The incoming report carries zero novelty.
	existing, err := e.store.FindIntelByFingerprint(fp, since)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if existing != nil {
		return e.merge(existing.ID, article, 0.0, 1.0, false)
	}

	vec, err := e.embedSummary(ctx, c.Summary)
	if err != nil {
		// A cancelled run is not an embedding outage.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Degraded mode: fingerprint-only dedup already ran, so persist
		// the item without an embedding at the neutral default novelty.
		e.logger.Warn().Err(err).Str("title", article.Title).
			Msg("embedding unavailable, creating intel in degraded mode")
		return e.create(article, c, fp, 0.5, nil, true)
	}

	score := e.scorer.NoMatch()
	similarity := 0.0
	if matches := e.idx.Query(vec, 1); len(matches) > 0 {
		best := matches[0]
		matched, err := e.store.GetIntel(best.IntelID)
		if errors.Is(err, storage.ErrIntelNotFound) {
			// Index entry outlived its row. Drop it and fall through to create.
			e.idx.Delete(best.IntelID)
		} else if err != nil {
			return nil, fmt.Errorf("load matched intel %d: %w", best.IntelID, err)
		} else {
			inWindow := !matched.CreatedAt.Before(since)
			if best.Similarity >= e.threshold && inWindow {
				s := e.scorer.Score(best.Similarity, now.Sub(matched.CreatedAt))
				return e.merge(matched.ID, article, s, best.Similarity, false)
			}
			// Below threshold or outside the window: new item, but its
			// novelty still reflects how close the nearest story is.
			score = e.scorer.Score(best.Similarity, now.Sub(matched.CreatedAt))
			similarity = best.Similarity
		}
	}

	decision, err := e.create(article, c, fp, score, embedding.EncodeFloat32s(vec), false)
	if err != nil {
		return nil, err
	}
	e.idx.Upsert(decision.IntelID, vec)
	decision.Similarity = similarity
	return decision, nil
}

// embedSummary runs the embedding call under the per-attempt timeout and the
// retry budget so a stalled model server cannot wedge the run.
func (e *Engine) embedSummary(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, e.retryCfg, func() error {
		callCtx := ctx
		if e.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.callTimeout)
			defer cancel()
		}
		v, embedErr := embedding.Single(callCtx, e.embedder, text)
		if embedErr != nil {
			return embedErr
		}
		vec = v
		return nil
	})
	return vec, err
}

// merge absorbs an article into an existing intel item. A vanished target is
// a logged skip, not an error.
func (e *Engine) merge(intelID int64, article *storage.Article, score, similarity float64, degraded bool) (*Decision, error) {
	stripe := &e.stripes[intelID%mergeStripes]
	stripe.Lock()
	defer stripe.Unlock()

	err := e.store.MergeIntel(intelID, article.URL, article.SourceLabel)
	if errors.Is(err, storage.ErrIntelNotFound) {
		e.logger.Warn().Int64("intel_id", intelID).Str("url", article.URL).
			Msg("merge target vanished, skipping")
		return &Decision{Action: ActionSkipped}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("merge into intel %d: %w", intelID, err)
	}

	e.logger.Debug().Int64("intel_id", intelID).Str("url", article.URL).
		Float64("similarity", similarity).Msg("merged article into intel")
	return &Decision{
		Action:     ActionMerged,
		IntelID:    intelID,
		Novelty:    score,
		Similarity: similarity,
		Degraded:   degraded,
	}, nil
}

func (e *Engine) create(article *storage.Article, c *classify.Classification, fp string, score float64, emb []byte, degraded bool) (*Decision, error) {
	intelID, err := e.store.CreateIntel(&storage.IntelItem{
		ArticleID:      article.ID,
		CompetitorID:   article.CompetitorID,
		Summary:        c.Summary,
		Category:       c.Category,
		ImpactScore:    c.ImpactScore,
		RelevanceScore: c.RelevanceScore,
		NoveltyScore:   score,
		SourceCount:    1,
		Fingerprint:    fp,
		RelatedURLs:    []string{article.URL},
		SourceLabels:   []string{article.SourceLabel},
		Embedding:      emb,
	})
	if err != nil {
		return nil, fmt.Errorf("create intel: %w", err)
	}

	e.logger.Debug().Int64("intel_id", intelID).Str("url", article.URL).
		Float64("novelty", score).Bool("degraded", degraded).Msg("created intel item")
	return &Decision{
		Action:   ActionCreated,
		IntelID:  intelID,
		Novelty:  score,
		Degraded: degraded,
	}, nil
}
