package storage

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FeedConfig is a single RSS source.
type FeedConfig struct {
	Label    string   `yaml:"label"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"filter_keywords,omitempty"`
}

// CompetitorConfig groups the feeds tracked for one competitor.
type CompetitorConfig struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Feeds []FeedConfig `yaml:"feeds"`
}

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Ollama struct {
		BaseURL       string `yaml:"base_url"`
		ClassifyModel string `yaml:"classify_model"`
		EmbedModel    string `yaml:"embed_model"`
		AnnotateModel string `yaml:"annotate_model"`
	} `yaml:"ollama"`

	Thresholds struct {
		MinRelevance float64 `yaml:"min_relevance"`
		MinImpact    float64 `yaml:"min_impact"`
	} `yaml:"thresholds"`

	Dedup struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
		LookbackHours       int     `yaml:"lookback_hours"`
		DecayFloor          float64 `yaml:"decay_floor"`
		DecayHalfLifeHours  int     `yaml:"decay_half_life_hours"`
	} `yaml:"dedup"`

	Collection struct {
		LookbackHours int           `yaml:"lookback_hours"`
		MaxPerFeed    int           `yaml:"max_per_feed"`
		Workers       int           `yaml:"workers"`
		FeedTimeout   time.Duration `yaml:"feed_timeout"`
		CallTimeout   time.Duration `yaml:"call_timeout"`
	} `yaml:"collection"`

	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Delay       time.Duration `yaml:"delay"`
	} `yaml:"retry"`

	Competitors   []CompetitorConfig `yaml:"competitors,omitempty"`
	IndustryFeeds []FeedConfig       `yaml:"industry_feeds,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./radar.db"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.ClassifyModel = "llama3"
	cfg.Ollama.EmbedModel = "nomic-embed-text"
	cfg.Ollama.AnnotateModel = "llama3"
	cfg.Thresholds.MinRelevance = 3.5
	cfg.Thresholds.MinImpact = 3.5
	cfg.Dedup.SimilarityThreshold = 0.85
	cfg.Dedup.LookbackHours = 720 // 30 days
	cfg.Dedup.DecayFloor = 0.2
	cfg.Dedup.DecayHalfLifeHours = 48
	cfg.Collection.LookbackHours = 48
	cfg.Collection.MaxPerFeed = 20
	cfg.Collection.Workers = 4
	cfg.Collection.FeedTimeout = 15 * time.Second
	cfg.Collection.CallTimeout = 60 * time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.Delay = 2 * time.Second
	return cfg
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1], got %f", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.DecayFloor < 0 || c.Dedup.DecayFloor >= 1 {
		return fmt.Errorf("dedup.decay_floor must be in [0, 1), got %f", c.Dedup.DecayFloor)
	}
	if c.Dedup.LookbackHours <= 0 {
		return fmt.Errorf("dedup.lookback_hours must be positive, got %d", c.Dedup.LookbackHours)
	}
	if c.Collection.Workers < 1 {
		return fmt.Errorf("collection.workers must be >= 1, got %d", c.Collection.Workers)
	}
	return nil
}

// LookbackWindow is the dedup window as a duration.
func (c *Config) LookbackWindow() time.Duration {
	return time.Duration(c.Dedup.LookbackHours) * time.Hour
}

// DecayHalfLife is the novelty decay half-life as a duration.
func (c *Config) DecayHalfLife() time.Duration {
	return time.Duration(c.Dedup.DecayHalfLifeHours) * time.Hour
}
