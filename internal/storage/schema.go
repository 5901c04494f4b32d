package storage

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    status TEXT NOT NULL DEFAULT 'running',
    notes TEXT,
    report_path TEXT
);

CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    competitor_id TEXT NOT NULL DEFAULT 'industry',
    source_label TEXT NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL UNIQUE,
    published_at DATETIME,
    raw_snippet TEXT,
    hash TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_articles_hash ON articles(hash);
CREATE INDEX IF NOT EXISTS idx_articles_competitor ON articles(competitor_id);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC);

CREATE TABLE IF NOT EXISTS intel (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    article_id INTEGER NOT NULL,
    competitor_id TEXT NOT NULL DEFAULT 'industry',
    summary TEXT NOT NULL,
    category TEXT NOT NULL,
    impact_score REAL NOT NULL,
    relevance_score REAL NOT NULL,
    novelty_score REAL NOT NULL DEFAULT 0.5,
    source_count INTEGER NOT NULL DEFAULT 1,
    fingerprint TEXT NOT NULL,
    related_urls TEXT NOT NULL DEFAULT '[]',
    source_labels TEXT NOT NULL DEFAULT '[]',
    embedding BLOB,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (article_id) REFERENCES articles(id)
);

CREATE INDEX IF NOT EXISTS idx_intel_fingerprint ON intel(fingerprint);
CREATE INDEX IF NOT EXISTS idx_intel_created ON intel(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_intel_category_scores ON intel(category, impact_score);
CREATE INDEX IF NOT EXISTS idx_intel_competitor ON intel(competitor_id);

CREATE TABLE IF NOT EXISTS annotations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    intel_id INTEGER NOT NULL,
    agent_role TEXT NOT NULL,
    so_what TEXT NOT NULL,
    risk_opportunity TEXT NOT NULL,
    priority TEXT NOT NULL,
    suggested_action TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (intel_id) REFERENCES intel(id)
);

CREATE INDEX IF NOT EXISTS idx_annotations_intel ON annotations(intel_id);
CREATE INDEX IF NOT EXISTS idx_annotations_agent ON annotations(agent_role);
`
