package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ollamaEmbedder calls a local Ollama server's /api/embed endpoint, which
// accepts a batch of prompts under "input" and returns one embedding per
// input in order.
type ollamaEmbedder struct {
	baseURL   string
	model     string
	batchSize int
	timeout   time.Duration
	client    *http.Client

	mu  sync.Mutex
	dim int
}

func newOllamaEmbedder(baseURL, model string, batchSize int, timeout time.Duration) *ollamaEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ollamaEmbedder{
		baseURL:   baseURL,
		model:     model,
		batchSize: batchSize,
		timeout:   timeout,
		client:    &http.Client{},
	}
}

func (o *ollamaEmbedder) Name() string { return o.model }

func (o *ollamaEmbedder) Dimension() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dim
}

func (o *ollamaEmbedder) Ping(ctx context.Context) error {
	_, err := o.call(ctx, []string{"ping"})
	return err
}

func (o *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	for _, group := range batch(texts, o.batchSize) {
		vectors, err := o.call(ctx, group)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *ollamaEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := withRetry(ctx, "ollama", func() error {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(cctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("ollama embed: %s: %s", resp.Status, string(respBody))
		}

		var parsed ollamaEmbedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("ollama embed: decode response: %w", err)
		}
		if len(parsed.Embeddings) != len(texts) {
			return fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(parsed.Embeddings))
		}
		result = parsed.Embeddings
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		o.mu.Lock()
		o.dim = len(result[0])
		o.mu.Unlock()
	}
	return result, nil
}
