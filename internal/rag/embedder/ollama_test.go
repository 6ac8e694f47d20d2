package embedder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragcore/internal/apperr"
)

func TestOllamaEmbedderBatchesAndReportsDimension(t *testing.T) {
	var gotBatches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotBatches = append(gotBatches, req.Input)
		resp := ollamaEmbedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{1, 2, 3})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := newOllamaEmbedder(srv.URL, "nomic-embed-text", 2, 0)
	vectors, err := e.Embed(t.Context(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if e.Dimension() != 3 {
		t.Fatalf("expected dimension 3, got %d", e.Dimension())
	}
	if len(gotBatches) != 2 {
		t.Fatalf("expected 2 batches with batch size 2, got %d", len(gotBatches))
	}
}

func TestOllamaEmbedderSurfacesProviderUnavailableAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := newOllamaEmbedder(srv.URL, "nomic-embed-text", 16, 0)
	_, err := e.Embed(t.Context(), []string{"a"})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if kind := apperr.KindOf(err); kind != apperr.ProviderUnavailable {
		t.Fatalf("expected ProviderUnavailable, got %v", kind)
	}
}
