package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSupportsToolsReadsCapabilitiesFromShow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"capabilities":["completion","tools"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3.1")
	if !c.SupportsTools(context.Background()) {
		t.Fatalf("expected SupportsTools true when /api/show reports the tools capability")
	}
}

func TestSupportsToolsFalseWithoutCapability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"capabilities":["completion"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tinyllama")
	if c.SupportsTools(context.Background()) {
		t.Fatalf("expected SupportsTools false without the tools capability")
	}
}

func TestSupportsToolsIsCachedPerModel(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"capabilities":["tools"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3.1")
	c.SupportsTools(context.Background())
	c.SupportsTools(context.Background())
	if calls != 1 {
		t.Fatalf("expected exactly one /api/show probe, got %d", calls)
	}
}
