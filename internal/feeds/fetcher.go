// Package feeds collects raw articles from competitor and industry RSS feeds.
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/streamwatch/radar/internal/fingerprint"
	"github.com/streamwatch/radar/internal/storage"
)

const maxSnippetLen = 4000

type Fetcher struct {
	parser    *gofeed.Parser
	client    *http.Client
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger

	lookback    time.Duration
	maxPerFeed  int
	feedTimeout time.Duration
}

// NewFetcher creates a feed fetcher. Snippets are stripped to plain text
// before storage; feed HTML is never trusted.
func NewFetcher(cfg *storage.Config, logger zerolog.Logger) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = "Radar/1.0"
	return &Fetcher{
		parser:      parser,
		client:      &http.Client{},
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger,
		lookback:    time.Duration(cfg.Collection.LookbackHours) * time.Hour,
		maxPerFeed:  cfg.Collection.MaxPerFeed,
		feedTimeout: cfg.Collection.FeedTimeout,
	}
}

// CollectAll fetches every configured competitor and industry feed. A failing
// feed is logged and skipped; the rest of the batch proceeds. Articles are
// returned in fetch order with URLs unique within the batch.
func (f *Fetcher) CollectAll(ctx context.Context, cfg *storage.Config) []storage.Article {
	var articles []storage.Article
	seen := make(map[string]bool)

	for _, competitor := range cfg.Competitors {
		for _, feed := range competitor.Feeds {
			items, err := f.collectFeed(ctx, competitor.ID, feed)
			if err != nil {
				f.logger.Warn().Err(err).Str("feed", feed.URL).
					Str("competitor", competitor.ID).Msg("feed fetch failed, skipping")
				continue
			}
			articles = appendUnique(articles, items, seen)
		}
	}

	for _, feed := range cfg.IndustryFeeds {
		items, err := f.collectFeed(ctx, "industry", feed)
		if err != nil {
			f.logger.Warn().Err(err).Str("feed", feed.URL).Msg("feed fetch failed, skipping")
			continue
		}
		articles = appendUnique(articles, items, seen)
	}

	return articles
}

// collectFeed fetches and filters one feed.
func (f *Fetcher) collectFeed(ctx context.Context, competitorID string, feed storage.FeedConfig) ([]storage.Article, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.feedTimeout)
	defer cancel()

	parsed, err := f.fetch(fetchCtx, feed.URL)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-f.lookback)
	var articles []storage.Article
	for _, item := range parsed.Items {
		if len(articles) >= f.maxPerFeed {
			break
		}
		if item.Link == "" || item.Title == "" {
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if published != nil && published.Before(cutoff) {
			continue
		}
		if !matchesKeywords(item, feed.Keywords) {
			continue
		}

		snippet := f.snippet(item)
		articles = append(articles, storage.Article{
			CompetitorID: competitorID,
			SourceLabel:  feed.Label,
			Title:        strings.TrimSpace(item.Title),
			URL:          item.Link,
			PublishedAt:  published,
			RawSnippet:   snippet,
			Hash:         fingerprint.ArticleHash(competitorID, item.Title, item.Link),
		})
	}

	return articles, nil
}

func (f *Fetcher) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", "Radar/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feedURL, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feedURL, err)
	}

	return parsed, nil
}

// snippet extracts a plain-text excerpt from the richest field available.
func (f *Fetcher) snippet(item *gofeed.Item) string {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	clean := strings.TrimSpace(f.sanitizer.Sanitize(raw))
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > maxSnippetLen {
		clean = clean[:maxSnippetLen]
	}
	return clean
}

// matchesKeywords reports whether an item passes the feed's keyword filter.
// An empty keyword list admits everything.
func matchesKeywords(item *gofeed.Item, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(item.Title + " " + item.Description + " " + item.Content)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func appendUnique(dst []storage.Article, src []storage.Article, seen map[string]bool) []storage.Article {
	for _, a := range src {
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		dst = append(dst, a)
	}
	return dst
}
