// Package embedder implements component D of the ingestion pipeline: a
// capability interface over the active embedding provider, batched and
// retried per §4.D.
package embedder

import (
	"context"
	"strings"

	"ragcore/internal/config"
)

// Embedder converts text into fixed-dimension embedding vectors using
// whichever provider was selected at startup.
type Embedder interface {
	// Embed returns one vector per input text, batching internally.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the active model, for logging and collection metadata.
	Name() string
	// Dimension returns the vector width, 0 until the first successful call
	// has observed it.
	Dimension() int
	// Ping verifies the provider is reachable.
	Ping(ctx context.Context) error
}

// NewFromConfig selects the OpenAI or Ollama embedder named by
// cfg.EmbeddingProvider.
func NewFromConfig(cfg config.Config) (Embedder, error) {
	batchSize := cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "", "ollama":
		return newOllamaEmbedder(cfg.OllamaBaseUrl, cfg.OllamaEmbeddingModel, batchSize, cfg.Timeouts.Embedding), nil
	case "openai":
		return newOpenAIEmbedder(cfg.OpenAIAPIKey, defaultOpenAIEmbeddingModel, batchSize, cfg.Timeouts.Embedding), nil
	default:
		return nil, &unsupportedProviderError{provider: cfg.EmbeddingProvider}
	}
}

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

type unsupportedProviderError struct{ provider string }

func (e *unsupportedProviderError) Error() string {
	return "embedder: unsupported embedding provider " + e.provider
}

// batch splits texts into groups of at most size, preserving order.
func batch(texts []string, size int) [][]string {
	if size <= 0 {
		size = len(texts)
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
