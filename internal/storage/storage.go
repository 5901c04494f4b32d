// Package storage is the SQLite persistence layer: runs, raw articles,
// deduplicated intel, and annotations.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIntelNotFound is returned when a merge or lookup targets an intel row
// that does not exist. Callers treat it as a stale reference, not corruption.
var ErrIntelNotFound = errors.New("intel item not found")

type Store struct {
	db *sql.DB
}

// Run is one execution of the collection pipeline.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // running, completed, failed
	Notes      string
	ReportPath string
}

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Article is a raw ingested item. Rows are append-only: created once per
// unique URL, never mutated, never deleted.
type Article struct {
	ID           int64
	RunID        int64
	CompetitorID string // "industry" when not tied to a tracked competitor
	SourceLabel  string
	Title        string
	URL          string
	PublishedAt  *time.Time
	RawSnippet   string
	Hash         string
	CreatedAt    time.Time
}

// IntelItem is the analyzed, deduplicated unit of competitive intelligence.
// SourceCount always equals len(RelatedURLs); the seeding article's URL is
// the first element.
type IntelItem struct {
	ID             int64
	ArticleID      int64
	CompetitorID   string
	Summary        string
	Category       string
	ImpactScore    float64
	RelevanceScore float64
	NoveltyScore   float64
	SourceCount    int
	Fingerprint    string
	RelatedURLs    []string
	SourceLabels   []string
	Embedding      []byte
	CreatedAt      time.Time
}

// Annotation is a domain specialist's commentary on an intel item.
type Annotation struct {
	ID              int64
	IntelID         int64
	AgentRole       string
	SoWhat          string
	RiskOpportunity string // risk, opportunity, neutral
	Priority        string // P0, P1, P2
	SuggestedAction string
	CreatedAt       time.Time
}

// NewStore opens (or creates) the database at dbPath and initializes the
// schema. Write transactions take the lock immediately so concurrent merges
// queue instead of failing with SQLITE_BUSY.
func NewStore(dbPath string) (*Store, error) {
	// Pragmas go in the DSN so the driver applies them to every pooled
	// connection; a plain Exec would configure only one connection.
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite&_txlock=immediate"+
		"&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run in the running state and returns its ID.
func (s *Store) CreateRun() (int64, error) {
	result, err := s.db.Exec("INSERT INTO runs (status) VALUES (?)", RunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun marks a run finished with the given status and notes.
func (s *Store) FinishRun(runID int64, status, notes, reportPath string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = CURRENT_TIMESTAMP, status = ?, notes = ?, report_path = ?
		 WHERE id = ?`,
		status, notes, reportPath, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// GetRun returns a single run by ID.
func (s *Store) GetRun(runID int64) (*Run, error) {
	var r Run
	var notes, reportPath sql.NullString
	err := s.db.QueryRow(
		"SELECT id, started_at, finished_at, status, notes, report_path FROM runs WHERE id = ?",
		runID,
	).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &notes, &reportPath)
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", runID, err)
	}
	r.Notes = notes.String
	r.ReportPath = reportPath.String
	return &r, nil
}

// InsertArticle stores a raw article, skipping silently when the URL already
// exists (idempotent re-ingestion). Returns the new row ID and whether a row
// was actually inserted.
func (s *Store) InsertArticle(a *Article) (int64, bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO articles (run_id, competitor_id, source_label, title, url, published_at, raw_snippet, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		a.RunID, a.CompetitorID, a.SourceLabel, a.Title, a.URL, a.PublishedAt, a.RawSnippet, a.Hash,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert article: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert article rows affected: %w", err)
	}
	if rows == 0 {
		return 0, false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("insert article id: %w", err)
	}
	return id, true, nil
}

// GetArticle returns a single article by ID.
func (s *Store) GetArticle(articleID int64) (*Article, error) {
	var a Article
	var snippet sql.NullString
	err := s.db.QueryRow(
		`SELECT id, run_id, competitor_id, source_label, title, url, published_at, raw_snippet, hash, created_at
		 FROM articles WHERE id = ?`, articleID,
	).Scan(&a.ID, &a.RunID, &a.CompetitorID, &a.SourceLabel, &a.Title, &a.URL,
		&a.PublishedAt, &snippet, &a.Hash, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", articleID, err)
	}
	a.RawSnippet = snippet.String
	return &a, nil
}

// CountArticlesForRun returns how many article rows a run ingested.
func (s *Store) CountArticlesForRun(runID int64) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM articles WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles for run %d: %w", runID, err)
	}
	return count, nil
}
