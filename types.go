package radar

import (
	"github.com/streamwatch/radar/internal/output"
	"github.com/streamwatch/radar/internal/storage"
)

// Public views of the persistence types. The internal packages own the
// definitions; the facade re-exports them for CLI and library callers.
type (
	Run        = storage.Run
	Article    = storage.Article
	IntelItem  = storage.IntelItem
	Annotation = storage.Annotation

	IntelFilter = storage.IntelFilter
	RunResult   = output.RunResult
)

// EngineConfig configures the radar engine. Zero values fall back to the
// defaults in storage.DefaultConfig.
type EngineConfig struct {
	ConfigPath    string // YAML config file; empty means defaults only
	DBPath        string // overrides database.path when set
	OllamaBaseURL string // overrides ollama.base_url when set
	LogLevel      string // zerolog level, default "info"
	ConsoleLog    bool   // human-readable log output
}
