// Package registry builds and caches Provider handles across the four
// provider families, per §4.G's provider kernel factory.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"ragcore/internal/config"
	"ragcore/internal/llm"
	"ragcore/internal/llm/anthropic"
	"ragcore/internal/llm/google"
	"ragcore/internal/llm/ollama"
	"ragcore/internal/llm/openai"
)

// Factory lazily builds and caches one Provider handle per provider+model,
// a read-mostly map with lazy insertion guarded by a mutex (§5 Shared-
// resource policy): entries are never mutated in place once built.
type Factory struct {
	cfg config.Config

	mu    sync.Mutex
	cache map[string]llm.Provider
}

// New builds a provider factory over cfg's API keys and endpoints.
func New(cfg config.Config) *Factory {
	return &Factory{cfg: cfg, cache: make(map[string]llm.Provider)}
}

// Get returns the cached handle for provider+model, building one on first
// use. provider is one of "openai", "anthropic", "google", "ollama"
// (case-insensitive); "local" is accepted as an alias for "ollama" since
// the spec's "local model server" family is served by Ollama's API.
func (f *Factory) Get(provider, model string) (llm.Provider, error) {
	key := strings.ToLower(provider) + "/" + model

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	p, err := f.build(strings.ToLower(provider), model)
	if err != nil {
		return nil, err
	}
	f.cache[key] = p
	return p, nil
}

func (f *Factory) build(provider, model string) (llm.Provider, error) {
	switch provider {
	case "openai":
		return openai.New("openai", f.cfg.OpenAIAPIKey, "", model), nil
	case "anthropic":
		return anthropic.New(f.cfg.AnthropicAPIKey, model), nil
	case "google":
		return google.New(f.cfg.GeminiAPIKey, model)
	case "ollama", "local":
		return ollama.New(f.cfg.OllamaBaseUrl, model), nil
	default:
		return nil, fmt.Errorf("llm: unsupported provider %q", provider)
	}
}
