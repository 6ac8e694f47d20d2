// Package ollama implements the local model server provider family: chat
// completions go through Ollama's OpenAI-compatible endpoint, but
// SupportsTools is answered by probing Ollama's native /api/show, since an
// OpenAI-compatible endpoint gives no reliable signal for whether a locally
// served model actually understands tool calls.
package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"ragcore/internal/llm"
	"ragcore/internal/llm/openai"
)

// Client is the Ollama provider handle.
type Client struct {
	*openai.Client
	baseURL string
	model   string
	http    *http.Client

	mu    sync.Mutex
	cache map[string]bool // model -> SupportsTools, shared across calls
}

// New builds an Ollama handle against baseURL's OpenAI-compatible endpoint
// for completions and its native API for tool-support probing.
func New(baseURL, model string) *Client {
	return &Client{
		Client:  openai.New("ollama", "ollama", baseURL, model),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[string]bool),
	}
}

func (c *Client) Name() string { return "ollama" }

// SupportsTools probes /api/show for model once and caches the result
// (§4.G: "derived by probing model metadata and cached per model identifier").
// A probe failure is treated as no tool support rather than erroring the
// turn, since tools are an optional capability.
func (c *Client) SupportsTools(ctx context.Context) bool {
	c.mu.Lock()
	if v, ok := c.cache[c.model]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	supports := c.probeSupportsTools(ctx)

	c.mu.Lock()
	c.cache[c.model] = supports
	c.mu.Unlock()
	return supports
}

func (c *Client) probeSupportsTools(ctx context.Context) bool {
	body, err := json.Marshal(map[string]string{"model": c.model})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/show", strings.NewReader(string(body)))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var show struct {
		Capabilities []string `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return false
	}
	for _, capability := range show.Capabilities {
		if strings.EqualFold(capability, "tools") {
			return true
		}
	}
	return false
}

var _ llm.Provider = (*Client)(nil)
