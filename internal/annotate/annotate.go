// Package annotate layers specialist commentary on top of deduplicated intel.
// Each agent role reads the same item and appends its own annotation row;
// roles never edit each other's output.
package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/streamwatch/radar/internal/storage"
)

// Agent roles and their analytical lens.
var rolePersonas = map[string]string{
	"strategic": "a VP of Strategy focused on partnerships, M&A, and long-term positioning",
	"product":   "a product leader focused on feature gaps, platform capabilities, and UX",
	"content":   "a content strategy lead focused on programming, catalogs, and originals",
	"marketing": "a marketing director focused on campaigns, positioning, and audience",
	"ai_ads":    "an ads-technology lead focused on AI-driven advertising and targeting",
}

// Roles returns the known agent roles in a stable order.
func Roles() []string {
	return []string{"strategic", "product", "content", "marketing", "ai_ads"}
}

// Store is the slice of persistence the annotator needs.
type Store interface {
	AddAnnotation(a *storage.Annotation) (int64, error)
}

type Annotator struct {
	client *api.Client
	model  string
	store  Store
	logger zerolog.Logger
}

// NewAnnotator creates an annotator backed by a local Ollama model.
func NewAnnotator(baseURL, model string, store Store, logger zerolog.Logger) (*Annotator, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		// If env-based client fails, create one with the base URL
		parsedURL, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, nil)
	}

	return &Annotator{client: client, model: model, store: store, logger: logger}, nil
}

// AnnotateItem runs one role over one intel item and persists the result.
func (a *Annotator) AnnotateItem(ctx context.Context, item *storage.IntelItem, role string) (*storage.Annotation, error) {
	persona, ok := rolePersonas[role]
	if !ok {
		return nil, fmt.Errorf("unknown agent role %q", role)
	}

	prompt := fmt.Sprintf(`You are %s at a streaming media company. React to this piece of competitive intelligence.

Competitor: %s
Category: %s
Impact: %.1f/10
Sources: %d
Summary: %s

Respond ONLY with valid JSON in this exact format:
{
  "so_what": "<1-2 sentences on why this matters from your perspective>",
  "risk_opportunity": "<risk|opportunity|neutral>",
  "priority": "<P0|P1|P2>",
  "suggested_action": "<one concrete action, or empty string>"
}`, persona, item.CompetitorID, item.Category, item.ImpactScore, item.SourceCount, item.Summary)

	req := &api.GenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": 0.5,
		},
	}

	var fullResponse strings.Builder
	err := a.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama annotate failed: %w", err)
	}

	annotation, err := parseAnnotation(fullResponse.String())
	if err != nil {
		return nil, fmt.Errorf("annotate intel %d as %s: %w", item.ID, role, err)
	}
	annotation.IntelID = item.ID
	annotation.AgentRole = role

	if _, err := a.store.AddAnnotation(annotation); err != nil {
		return nil, fmt.Errorf("persist annotation: %w", err)
	}
	return annotation, nil
}

// AnnotateAll runs every requested role over every item. A failing role is
// logged and skipped so one bad model response cannot sink the batch.
// Returns the number of annotations written.
func (a *Annotator) AnnotateAll(ctx context.Context, items []storage.IntelItem, roles []string) int {
	written := 0
	for i := range items {
		for _, role := range roles {
			if ctx.Err() != nil {
				return written
			}
			if _, err := a.AnnotateItem(ctx, &items[i], role); err != nil {
				a.logger.Warn().Err(err).Int64("intel_id", items[i].ID).
					Str("role", role).Msg("annotation failed, skipping")
				continue
			}
			written++
		}
	}
	return written
}

type rawAnnotation struct {
	SoWhat          string `json:"so_what"`
	RiskOpportunity string `json:"risk_opportunity"`
	Priority        string `json:"priority"`
	SuggestedAction string `json:"suggested_action"`
}

// parseAnnotation decodes and validates a model response.
func parseAnnotation(text string) (*storage.Annotation, error) {
	extracted := extractJSON(text)

	var raw rawAnnotation
	if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
		return nil, fmt.Errorf("decode annotation JSON: %w", err)
	}

	if strings.TrimSpace(raw.SoWhat) == "" {
		return nil, fmt.Errorf("so_what must not be blank")
	}
	switch raw.RiskOpportunity {
	case "risk", "opportunity", "neutral":
	default:
		return nil, fmt.Errorf("invalid risk_opportunity %q", raw.RiskOpportunity)
	}
	switch raw.Priority {
	case "P0", "P1", "P2":
	default:
		return nil, fmt.Errorf("invalid priority %q", raw.Priority)
	}

	return &storage.Annotation{
		SoWhat:          strings.TrimSpace(raw.SoWhat),
		RiskOpportunity: raw.RiskOpportunity,
		Priority:        raw.Priority,
		SuggestedAction: strings.TrimSpace(raw.SuggestedAction),
	}, nil
}

// extractJSON attempts to extract JSON from a text response that might contain extra text
func extractJSON(text string) string {
	// Find first { and last }
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
