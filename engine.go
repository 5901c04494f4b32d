// Package radar is the public API for the competitive intelligence pipeline:
// feed collection, classification, dedup with novelty scoring, and briefings.
package radar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamwatch/radar/internal/annotate"
	"github.com/streamwatch/radar/internal/classify"
	"github.com/streamwatch/radar/internal/dedup"
	"github.com/streamwatch/radar/internal/embed"
	"github.com/streamwatch/radar/internal/feeds"
	"github.com/streamwatch/radar/internal/index"
	"github.com/streamwatch/radar/internal/logging"
	"github.com/streamwatch/radar/internal/novelty"
	"github.com/streamwatch/radar/internal/output"
	"github.com/streamwatch/radar/internal/retry"
	"github.com/streamwatch/radar/internal/storage"
)

// Engine wires the collection pipeline together. Create one per process.
type Engine struct {
	cfg        *storage.Config
	store      *storage.Store
	fetcher    *feeds.Fetcher
	classifier classify.Classifier
	dedup      *dedup.Engine
	annotator  *annotate.Annotator
	idx        *index.Index
	retryCfg   retry.Config
	logger     zerolog.Logger
}

// NewEngine creates an engine from the given configuration. The similarity
// index is warmed from persisted intel embeddings inside the dedup window.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	logger, err := logging.New(cfg.LogLevel, cfg.ConsoleLog)
	if err != nil {
		return nil, err
	}

	fileCfg := storage.DefaultConfig()
	if cfg.ConfigPath != "" {
		fileCfg, err = storage.LoadConfig(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
	}
	if cfg.DBPath != "" {
		fileCfg.Database.Path = cfg.DBPath
	}
	if cfg.OllamaBaseURL != "" {
		fileCfg.Ollama.BaseURL = cfg.OllamaBaseURL
	}

	store, err := storage.NewStore(fileCfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	embedder, err := embed.NewOllamaEmbedder(fileCfg.Ollama.BaseURL, fileCfg.Ollama.EmbedModel)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	classifier, err := classify.NewOllamaClassifier(fileCfg.Ollama.BaseURL, fileCfg.Ollama.ClassifyModel)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	annotator, err := annotate.NewAnnotator(fileCfg.Ollama.BaseURL, fileCfg.Ollama.AnnotateModel, store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create annotator: %w", err)
	}

	idx := index.New()
	persisted, err := store.IntelEmbeddings(time.Now().Add(-fileCfg.LookbackWindow()))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("warm similarity index: %w", err)
	}
	entries := make([]index.Entry, len(persisted))
	for i, p := range persisted {
		entries[i] = index.Entry{IntelID: p.IntelID, Embedding: p.Embedding}
	}
	idx.Load(entries)
	logger.Info().Int("vectors", idx.Len()).Msg("similarity index loaded")

	retryCfg := retry.Config{
		MaxAttempts: fileCfg.Retry.MaxAttempts,
		Delay:       fileCfg.Retry.Delay,
		Backoff:     true,
	}

	scorer := novelty.NewScorer(fileCfg.Dedup.DecayFloor, fileCfg.DecayHalfLife())
	engine := dedup.NewEngine(store, embedder, idx, scorer, dedup.Options{
		Threshold:   fileCfg.Dedup.SimilarityThreshold,
		Lookback:    fileCfg.LookbackWindow(),
		CallTimeout: fileCfg.Collection.CallTimeout,
		Retry:       retryCfg,
	}, logger)

	return &Engine{
		cfg:        fileCfg,
		store:      store,
		fetcher:    feeds.NewFetcher(fileCfg, logger),
		classifier: classifier,
		dedup:      engine,
		annotator:  annotator,
		idx:        idx,
		retryCfg:   retryCfg,
		logger:     logger,
	}, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Config exposes the resolved configuration.
func (e *Engine) Config() *storage.Config {
	return e.cfg
}

// classified pairs an inserted article with its classification. Position in
// the batch is preserved so dedup runs in arrival order.
type classified struct {
	article *storage.Article
	result  *classify.Classification
	skipped bool
}

// RunCollection executes one full pipeline run: fetch, ingest, classify,
// dedup, score. Articles already ingested in earlier runs are skipped.
// Classification happens with bounded parallelism; dedup decisions are made
// in arrival order. Cancelling ctx stops between articles; in-flight work
// completes and the run is marked failed.
func (e *Engine) RunCollection(ctx context.Context) (*RunResult, error) {
	runID, err := e.store.CreateRun()
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	e.logger.Info().Int64("run_id", runID).Msg("collection run started")

	result := &RunResult{RunID: runID, Status: storage.RunStatusRunning}

	fetched := e.fetcher.CollectAll(ctx, e.cfg)
	result.Fetched = len(fetched)

	var batch []*storage.Article
	for i := range fetched {
		a := &fetched[i]
		a.RunID = runID
		id, inserted, err := e.store.InsertArticle(a)
		if err != nil {
			return e.failRun(result, fmt.Errorf("insert article %q: %w", a.URL, err))
		}
		if !inserted {
			continue
		}
		a.ID = id
		batch = append(batch, a)
	}
	result.Inserted = len(batch)

	classifications := e.classifyBatch(ctx, batch)

	for i, c := range classifications {
		if err := ctx.Err(); err != nil {
			return e.failRun(result, fmt.Errorf("run cancelled: %w", err))
		}
		if c.skipped {
			result.Skipped++
			continue
		}
		decision, err := e.dedup.Process(ctx, batch[i], c.result)
		if err != nil {
			return e.failRun(result, fmt.Errorf("dedup %q: %w", batch[i].URL, err))
		}
		result.Processed++
		switch decision.Action {
		case dedup.ActionCreated:
			result.Created++
		case dedup.ActionMerged:
			result.Merged++
		case dedup.ActionSkipped:
			result.Skipped++
		}
		if decision.Degraded {
			result.Degraded = true
		}
	}

	result.Status = storage.RunStatusCompleted
	notes := fmt.Sprintf("fetched=%d inserted=%d processed=%d created=%d merged=%d skipped=%d",
		result.Fetched, result.Inserted, result.Processed, result.Created, result.Merged, result.Skipped)
	if result.Degraded {
		notes += " degraded=true"
	}
	if err := e.store.FinishRun(runID, storage.RunStatusCompleted, notes, ""); err != nil {
		return nil, fmt.Errorf("finish run %d: %w", runID, err)
	}

	e.logger.Info().Int64("run_id", runID).Int("created", result.Created).
		Int("merged", result.Merged).Int("skipped", result.Skipped).
		Bool("degraded", result.Degraded).Msg("collection run completed")
	return result, nil
}

// classifyBatch classifies articles with a bounded worker pool, preserving
// batch order in the returned slice. A classification that exhausts its
// retries, or fails the relevance/impact gate, is marked skipped.
func (e *Engine) classifyBatch(ctx context.Context, batch []*storage.Article) []classified {
	results := make([]classified, len(batch))
	jobs := make(chan int)

	workers := e.cfg.Collection.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.classifyOne(ctx, batch[i])
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (e *Engine) classifyOne(ctx context.Context, article *storage.Article) classified {
	var c *classify.Classification
	err := retry.Do(ctx, e.retryCfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Collection.CallTimeout)
		defer cancel()
		var err error
		c, err = e.classifier.Classify(callCtx, article)
		return err
	})
	if errors.Is(err, retry.ErrGaveUp) || errors.Is(err, context.Canceled) {
		e.logger.Warn().Err(err).Str("url", article.URL).Msg("classification skipped")
		return classified{article: article, skipped: true}
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("url", article.URL).Msg("classification failed, skipping")
		return classified{article: article, skipped: true}
	}

	if !classify.Gate(c, e.cfg.Thresholds.MinRelevance, e.cfg.Thresholds.MinImpact) {
		e.logger.Debug().Str("url", article.URL).
			Float64("relevance", c.RelevanceScore).Float64("impact", c.ImpactScore).
			Msg("article below thresholds, gated")
		return classified{article: article, skipped: true}
	}

	return classified{article: article, result: c}
}

// failRun marks the run failed, preserving per-article work already committed.
func (e *Engine) failRun(result *RunResult, cause error) (*RunResult, error) {
	result.Status = storage.RunStatusFailed
	result.Errors = append(result.Errors, cause.Error())
	if err := e.store.FinishRun(result.RunID, storage.RunStatusFailed, cause.Error(), ""); err != nil {
		e.logger.Error().Err(err).Int64("run_id", result.RunID).Msg("failed to mark run failed")
	}
	e.logger.Error().Err(cause).Int64("run_id", result.RunID).Msg("collection run failed")
	return result, cause
}

// ListIntel returns intel items for reporting, highest impact first.
func (e *Engine) ListIntel(filter IntelFilter) ([]IntelItem, error) {
	return e.store.ListIntel(filter)
}

// Annotations returns the specialist commentary for one intel item.
func (e *Engine) Annotations(intelID int64) ([]Annotation, error) {
	return e.store.GetAnnotations(intelID)
}

// Annotate runs the given agent roles over intel matching the filter and
// returns the number of annotations written. Empty roles means all roles.
func (e *Engine) Annotate(ctx context.Context, filter IntelFilter, roles []string) (int, error) {
	if len(roles) == 0 {
		roles = annotate.Roles()
	}
	items, err := e.store.ListIntel(filter)
	if err != nil {
		return 0, fmt.Errorf("list intel for annotation: %w", err)
	}
	return e.annotator.AnnotateAll(ctx, items, roles), nil
}

// GenerateBriefing renders a markdown briefing of intel created since the
// given time and writes it to path. It returns the rendered markdown.
func (e *Engine) GenerateBriefing(since time.Time, path string) (string, error) {
	items, err := e.store.ListIntel(storage.IntelFilter{Since: since})
	if err != nil {
		return "", fmt.Errorf("list intel for briefing: %w", err)
	}

	annotations := make(map[int64][]storage.Annotation)
	for _, item := range items {
		a, err := e.store.GetAnnotations(item.ID)
		if err != nil {
			return "", fmt.Errorf("load annotations for intel %d: %w", item.ID, err)
		}
		if len(a) > 0 {
			annotations[item.ID] = a
		}
	}

	md := output.Briefing(items, annotations, time.Now())
	if path != "" {
		if err := os.WriteFile(path, []byte(md), 0644); err != nil {
			return "", fmt.Errorf("write briefing: %w", err)
		}
	}
	return md, nil
}
