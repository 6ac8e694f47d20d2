// Package ollamaadmin wraps Ollama's native model-management endpoints
// (/api/tags, /api/pull, /api/delete), separate from the chat provider in
// internal/llm/ollama, which only ever talks to the OpenAI-compatible
// completions endpoint plus /api/show for tool-support probing.
package ollamaadmin

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragcore/internal/apperr"
)

// Client talks to one Ollama server's admin API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://localhost:11434").
func New(baseURL string) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

// Model is one locally installed model record, per GET /api/ollama/models.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// List returns every locally installed model.
func (c *Client) List(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build ollama list request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "list ollama models", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.BackendUnavailable, fmt.Sprintf("ollama returned status %d listing models", resp.StatusCode))
	}

	var body struct {
		Models []struct {
			Name       string    `json:"name"`
			Size       int64     `json:"size"`
			Digest     string    `json:"digest"`
			ModifiedAt time.Time `json:"modified_at"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "decode ollama model list", err)
	}

	out := make([]Model, 0, len(body.Models))
	for _, m := range body.Models {
		out = append(out, Model{Name: m.Name, Size: m.Size, Digest: m.Digest, ModifiedAt: m.ModifiedAt})
	}
	return out, nil
}

// PullProgress is one aggregated progress event for a model pull, combining
// every layer's byte counts into one overall figure per §6's requirement
// that progress update at least every 1% of overall completion.
type PullProgress struct {
	Digest          string `json:"digest"`
	BytesDownloaded int64  `json:"bytesDownloaded"`
	TotalBytes      int64  `json:"totalBytes"`
	Percent         int    `json:"percent"`
}

// Pull streams a model download, invoking onProgress for each aggregated
// progress update. Ollama's native /api/pull emits one JSON object per line,
// one line per layer digest; Pull tracks cumulative bytes across every
// digest seen so far and only calls onProgress when the overall percentage
// changes (it can drop when a newly seen layer adds to the total), rather
// than on every raw layer event.
func (c *Client) Pull(ctx context.Context, model string, onProgress func(PullProgress) error) error {
	payload, err := json.Marshal(map[string]any{"model": model, "stream": true})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode ollama pull request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", strings.NewReader(string(payload)))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build ollama pull request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "start ollama pull", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.BackendUnavailable, fmt.Sprintf("ollama returned status %d starting pull", resp.StatusCode))
	}

	layerTotals := map[string]int64{}
	layerDownloaded := map[string]int64{}
	var lastPercent = -1

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if event.Digest != "" {
			layerTotals[event.Digest] = event.Total
			layerDownloaded[event.Digest] = event.Completed
		}

		var totalBytes, downloadedBytes int64
		for digest, total := range layerTotals {
			totalBytes += total
			downloadedBytes += layerDownloaded[digest]
		}

		percent := 0
		if totalBytes > 0 {
			percent = int(downloadedBytes * 100 / totalBytes)
		}
		if percent != lastPercent {
			lastPercent = percent
			if err := onProgress(PullProgress{
				Digest:          event.Digest,
				BytesDownloaded: downloadedBytes,
				TotalBytes:      totalBytes,
				Percent:         percent,
			}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

// Delete uninstalls a locally installed model.
func (c *Client) Delete(ctx context.Context, model string) error {
	payload, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode ollama delete request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/delete", strings.NewReader(string(payload)))
	if err != nil {
		return apperr.Wrap(apperr.Internal, "build ollama delete request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "delete ollama model", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return apperr.New(apperr.NotFound, "model not installed")
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.New(apperr.BackendUnavailable, fmt.Sprintf("ollama returned status %d deleting model", resp.StatusCode))
	}
	return nil
}
