// Package classify turns raw articles into scored, categorized summaries
// using a local Ollama model.
package classify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/streamwatch/radar/internal/storage"
)

// Classification is the analyst output for one article.
type Classification struct {
	Summary        string  `json:"summary"`
	Category       string  `json:"category"`
	ImpactScore    float64 `json:"impact_score"`
	RelevanceScore float64 `json:"relevance_score"`
	Reasoning      string  `json:"reasoning,omitempty"`
}

// Classifier analyzes a single article.
type Classifier interface {
	Classify(ctx context.Context, article *storage.Article) (*Classification, error)
}

// OllamaClassifier implements Classifier against a local Ollama server.
type OllamaClassifier struct {
	client *api.Client
	model  string
}

// NewOllamaClassifier creates a classifier for the given model.
func NewOllamaClassifier(baseURL, model string) (*OllamaClassifier, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		// If env-based client fails, create one with the base URL
		parsedURL, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, nil)
	}

	return &OllamaClassifier{client: client, model: model}, nil
}

// Classify summarizes and scores an article. The model response must satisfy
// the embedded classification schema; anything else is an error the caller
// retries.
func (c *OllamaClassifier) Classify(ctx context.Context, article *storage.Article) (*Classification, error) {
	prompt := fmt.Sprintf(`You are a competitive intelligence analyst for a streaming media company. Analyze the following article about a competitor or the industry.

Competitor: %s
Source: %s
Title: %s

Content: %s

Categories:
- strategic: partnerships, acquisitions, market moves
- product: features, launches, platform changes
- content: programming, catalog, originals
- marketing: campaigns, positioning, brand
- ai_ads: advertising technology, AI features
- pricing: plan or price changes
- industry: broad industry news not tied to one competitor

Respond ONLY with valid JSON in this exact format:
{
  "summary": "<2-3 sentence factual summary>",
  "category": "<one category from the list>",
  "impact_score": <0-10, how much this could affect our business>,
  "relevance_score": <0-10, how relevant to competitive strategy>,
  "reasoning": "<brief explanation>"
}`, article.CompetitorID, article.SourceLabel, article.Title,
		truncateText(article.RawSnippet, 2000))

	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: new(bool), // false
		Options: map[string]interface{}{
			"temperature": 0.3,
		},
	}

	var fullResponse strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		fullResponse.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama classify failed: %w", err)
	}

	responseText := extractJSON(fullResponse.String())
	result, err := parseClassification([]byte(responseText))
	if err != nil {
		return nil, fmt.Errorf("classify %q: %w", article.Title, err)
	}

	return result, nil
}

// Gate reports whether a classification clears the minimum relevance and
// impact thresholds. Articles below the bar are dropped before dedup.
func Gate(c *Classification, minRelevance, minImpact float64) bool {
	return c.RelevanceScore >= minRelevance && c.ImpactScore >= minImpact
}

// truncateText truncates text to maxLen characters
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
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
