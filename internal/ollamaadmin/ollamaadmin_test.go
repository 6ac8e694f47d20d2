package ollamaadmin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragcore/internal/apperr"
)

func TestListParsesModelRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3","size":123,"digest":"abc","modified_at":"2026-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(models) != 1 || models[0].Name != "llama3" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestPullAggregatesProgressAcrossLayers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		lines := []string{
			`{"status":"pulling","digest":"layer1","total":100,"completed":50}`,
			`{"status":"pulling","digest":"layer2","total":100,"completed":0}`,
			`{"status":"pulling","digest":"layer2","total":100,"completed":100}`,
			`{"status":"success"}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	var events []PullProgress
	err := c.Pull(context.Background(), "llama3", func(p PullProgress) error {
		events = append(events, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected at least one progress event")
	}
	last := events[len(events)-1]
	if last.TotalBytes != 200 || last.BytesDownloaded != 150 {
		t.Fatalf("expected aggregated totals 150/200, got %d/%d", last.BytesDownloaded, last.TotalBytes)
	}
}

func TestDeleteMapsNotFoundToApperr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Delete(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected an error for a missing model")
	}
	if kind := apperr.KindOf(err); kind != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", kind)
	}
}
