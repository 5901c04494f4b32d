// Package embed provides an Ollama-backed embedder for intel similarity.
package embed

import (
	"context"
	"fmt"
	"net/url"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/ollama/ollama/api"
)

// OllamaEmbedder implements embedding.Embedder against a local Ollama server.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder for the given model.
func NewOllamaEmbedder(baseURL, model string) (*OllamaEmbedder, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		// If env-based client fails, create one with the base URL
		parsedURL, parseErr := url.Parse(baseURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid base URL: %w", parseErr)
		}
		client = api.NewClient(parsedURL, nil)
	}

	return &OllamaEmbedder{client: client, model: model}, nil
}

// Embed returns one embedding per input text.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d embeddings for %d inputs",
			len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

var _ embedding.Embedder = (*OllamaEmbedder)(nil)
