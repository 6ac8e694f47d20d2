package embedder

import (
	"context"
	"sync"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// openaiEmbedder calls the OpenAI embeddings endpoint via the official SDK.
type openaiEmbedder struct {
	client    sdk.Client
	model     string
	batchSize int
	timeout   time.Duration

	mu  sync.Mutex
	dim int
}

func newOpenAIEmbedder(apiKey, model string, batchSize int, timeout time.Duration) *openaiEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &openaiEmbedder{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		batchSize: batchSize,
		timeout:   timeout,
	}
}

func (o *openaiEmbedder) Name() string { return o.model }

func (o *openaiEmbedder) Dimension() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dim
}

func (o *openaiEmbedder) Ping(ctx context.Context) error {
	_, err := o.call(ctx, []string{"ping"})
	return err
}

func (o *openaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
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

func (o *openaiEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := withRetry(ctx, "openai", func() error {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		resp, err := o.client.Embeddings.New(cctx, sdk.EmbeddingNewParams{
			Model: sdk.EmbeddingModel(o.model),
			Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		})
		if err != nil {
			return err
		}

		vectors := make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, v := range d.Embedding {
				vec[j] = float32(v)
			}
			vectors[i] = vec
		}
		result = vectors
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
