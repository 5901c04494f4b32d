package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// IntelFilter narrows ListIntel results. Zero values mean "no filter".
type IntelFilter struct {
	Category     string
	CompetitorID string
	Since        time.Time
	Limit        int
}

// IntelEmbedding pairs an intel ID with its persisted embedding blob.
type IntelEmbedding struct {
	IntelID   int64
	Embedding []byte
}

// CreateIntel inserts a new intel item seeded by its first-seen article.
// The caller sets RelatedURLs to the seeding article's URL (and SourceLabels
// to its source) so that source_count == len(related_urls) holds from birth.
func (s *Store) CreateIntel(item *IntelItem) (int64, error) {
	if len(item.RelatedURLs) == 0 {
		return 0, fmt.Errorf("create intel: related_urls must contain the seeding URL")
	}
	if item.SourceCount != len(item.RelatedURLs) {
		return 0, fmt.Errorf("create intel: source_count %d != %d related urls",
			item.SourceCount, len(item.RelatedURLs))
	}

	urls, err := json.Marshal(item.RelatedURLs)
	if err != nil {
		return 0, fmt.Errorf("marshal related urls: %w", err)
	}
	labels, err := json.Marshal(item.SourceLabels)
	if err != nil {
		return 0, fmt.Errorf("marshal source labels: %w", err)
	}

	result, err := s.db.Exec(
		`INSERT INTO intel (article_id, competitor_id, summary, category, impact_score,
		                    relevance_score, novelty_score, source_count, fingerprint,
		                    related_urls, source_labels, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ArticleID, item.CompetitorID, item.Summary, item.Category, item.ImpactScore,
		item.RelevanceScore, item.NoveltyScore, item.SourceCount, item.Fingerprint,
		string(urls), string(labels), item.Embedding,
	)
	if err != nil {
		return 0, fmt.Errorf("create intel: %w", err)
	}
	return result.LastInsertId()
}

// GetIntel returns a single intel item by ID.
func (s *Store) GetIntel(intelID int64) (*IntelItem, error) {
	row := s.db.QueryRow(intelSelect+" WHERE id = ?", intelID)
	item, err := scanIntel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIntelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intel %d: %w", intelID, err)
	}
	return item, nil
}

// FindIntelByFingerprint returns the most recent intel item with the given
// fingerprint created at or after since, or nil when there is none.
func (s *Store) FindIntelByFingerprint(fingerprint string, since time.Time) (*IntelItem, error) {
	row := s.db.QueryRow(
		intelSelect+" WHERE fingerprint = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 1",
		fingerprint, since,
	)
	item, err := scanIntel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find intel by fingerprint: %w", err)
	}
	return item, nil
}

// MergeIntel absorbs another article into an existing intel item:
// source_count is incremented and the URL (and source label, if new) is
// appended, all in one transaction so concurrent merges to the same item
// cannot lose updates. Merging a URL that is already recorded is a no-op,
// which keeps re-runs idempotent. The item's stored novelty is untouched.
func (s *Store) MergeIntel(intelID int64, url, sourceLabel string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("merge intel %d: begin: %w", intelID, err)
	}
	defer tx.Rollback()

	var rawURLs, rawLabels string
	err = tx.QueryRow(
		"SELECT related_urls, source_labels FROM intel WHERE id = ?", intelID,
	).Scan(&rawURLs, &rawLabels)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrIntelNotFound
	}
	if err != nil {
		return fmt.Errorf("merge intel %d: read: %w", intelID, err)
	}

	var urls, labels []string
	if err := json.Unmarshal([]byte(rawURLs), &urls); err != nil {
		return fmt.Errorf("merge intel %d: decode related urls: %w", intelID, err)
	}
	if err := json.Unmarshal([]byte(rawLabels), &labels); err != nil {
		return fmt.Errorf("merge intel %d: decode source labels: %w", intelID, err)
	}

	for _, u := range urls {
		if u == url {
			return nil // already absorbed
		}
	}
	urls = append(urls, url)
	if sourceLabel != "" && !contains(labels, sourceLabel) {
		labels = append(labels, sourceLabel)
	}

	newURLs, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("merge intel %d: encode related urls: %w", intelID, err)
	}
	newLabels, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("merge intel %d: encode source labels: %w", intelID, err)
	}

	_, err = tx.Exec(
		"UPDATE intel SET source_count = source_count + 1, related_urls = ?, source_labels = ? WHERE id = ?",
		string(newURLs), string(newLabels), intelID,
	)
	if err != nil {
		return fmt.Errorf("merge intel %d: update: %w", intelID, err)
	}

	return tx.Commit()
}

// ListIntel returns intel items ordered by impact score descending, newest
// first within equal impact. This is the read surface the report synthesizer
// consumes.
func (s *Store) ListIntel(f IntelFilter) ([]IntelItem, error) {
	query := intelSelect + " WHERE 1=1"
	var args []any
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.CompetitorID != "" {
		query += " AND competitor_id = ?"
		args = append(args, f.CompetitorID)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.Since)
	}
	query += " ORDER BY impact_score DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list intel: %w", err)
	}
	defer rows.Close()

	var items []IntelItem
	for rows.Next() {
		item, err := scanIntel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intel: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// IntelEmbeddings returns the persisted embeddings for intel created at or
// after since, used to warm the similarity index at startup.
func (s *Store) IntelEmbeddings(since time.Time) ([]IntelEmbedding, error) {
	rows, err := s.db.Query(
		"SELECT id, embedding FROM intel WHERE created_at >= ? AND embedding IS NOT NULL",
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("intel embeddings: %w", err)
	}
	defer rows.Close()

	var entries []IntelEmbedding
	for rows.Next() {
		var e IntelEmbedding
		if err := rows.Scan(&e.IntelID, &e.Embedding); err != nil {
			return nil, fmt.Errorf("scan intel embedding: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddAnnotation appends a specialist's commentary to an intel item.
// Annotations are append-only; each agent role writes its own rows with no
// shared mutable fields.
func (s *Store) AddAnnotation(a *Annotation) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO annotations (intel_id, agent_role, so_what, risk_opportunity, priority, suggested_action)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.IntelID, a.AgentRole, a.SoWhat, a.RiskOpportunity, a.Priority, a.SuggestedAction,
	)
	if err != nil {
		return 0, fmt.Errorf("add annotation: %w", err)
	}
	return result.LastInsertId()
}

// GetAnnotations returns all annotations for an intel item in append order.
func (s *Store) GetAnnotations(intelID int64) ([]Annotation, error) {
	rows, err := s.db.Query(
		`SELECT id, intel_id, agent_role, so_what, risk_opportunity, priority, suggested_action, created_at
		 FROM annotations WHERE intel_id = ? ORDER BY id`,
		intelID,
	)
	if err != nil {
		return nil, fmt.Errorf("get annotations for intel %d: %w", intelID, err)
	}
	defer rows.Close()

	var annotations []Annotation
	for rows.Next() {
		var a Annotation
		var action sql.NullString
		if err := rows.Scan(&a.ID, &a.IntelID, &a.AgentRole, &a.SoWhat,
			&a.RiskOpportunity, &a.Priority, &action, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		a.SuggestedAction = action.String
		annotations = append(annotations, a)
	}
	return annotations, rows.Err()
}

const intelSelect = `SELECT id, article_id, competitor_id, summary, category, impact_score,
       relevance_score, novelty_score, source_count, fingerprint,
       related_urls, source_labels, embedding, created_at
FROM intel`

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanIntel(row scanner) (*IntelItem, error) {
	var item IntelItem
	var rawURLs, rawLabels string
	if err := row.Scan(&item.ID, &item.ArticleID, &item.CompetitorID, &item.Summary,
		&item.Category, &item.ImpactScore, &item.RelevanceScore, &item.NoveltyScore,
		&item.SourceCount, &item.Fingerprint, &rawURLs, &rawLabels,
		&item.Embedding, &item.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawURLs), &item.RelatedURLs); err != nil {
		return nil, fmt.Errorf("decode related urls: %w", err)
	}
	if err := json.Unmarshal([]byte(rawLabels), &item.SourceLabels); err != nil {
		return nil, fmt.Errorf("decode source labels: %w", err)
	}
	return &item, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
