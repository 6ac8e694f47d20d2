package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ragcore/internal/agent"
	"ragcore/internal/analytics"
	"ragcore/internal/chat"
	"ragcore/internal/config"
	"ragcore/internal/documents"
	"ragcore/internal/health"
	"ragcore/internal/llm"
	"ragcore/internal/metadatastore"
	"ragcore/internal/ollamaadmin"
	"ragcore/internal/rag/chunker"
	"ragcore/internal/rag/ingest"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/rag/vectorstore"
)

type fakeProvider struct{ reply string }

func (f *fakeProvider) Complete(context.Context, []llm.Message, float64, []llm.ToolSchema) (llm.Message, llm.Usage, error) {
	return llm.Message{Role: "assistant", Content: f.reply}, llm.Usage{PromptTokens: 1, CompletionTokens: 1}, nil
}
func (f *fakeProvider) CompleteStreaming(ctx context.Context, _ []llm.Message, _ float64, _ []llm.ToolSchema, h llm.StreamHandler) error {
	return h(llm.StreamDelta{Text: f.reply, Done: true})
}
func (f *fakeProvider) SupportsTools(context.Context) bool { return false }
func (f *fakeProvider) Name() string                       { return "fake" }

type fakeProviderFactory struct{ provider llm.Provider }

func (f *fakeProviderFactory) Get(string, string) (llm.Provider, error) { return f.provider, nil }

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string              { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := metadatastore.Open(filepath.Join(t.TempDir(), "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	embed := &fakeEmbedder{dim: 4}
	vectors := vectorstore.NewMemoryStore()
	pipeline := &ingest.Pipeline{
		Store:    store,
		Parsers:  documents.NewFactory(),
		Embedder: embed,
		Vectors:  vectors,
		ChunkOptions: chunker.Options{
			CharacterLimit:   2000,
			OverlapTokens:    20,
			MaxCodeFenceSize: 4000,
		},
	}

	searcher := &retrieval.Searcher{Store: store, Embedder: embed, Vectors: vectors}
	reg, err := agent.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	orch := &chat.Orchestrator{
		Store:     store,
		Providers: &fakeProviderFactory{provider: &fakeProvider{reply: "hello back"}},
		Searcher:  searcher,
		Tools:     reg,
		Analytics: analytics.NewReader(store, 0, 0, nil),
		Delimiter: "\n---\n",
	}
	healthRegistry := health.NewRegistry(health.Checker{Name: "store", Check: func(context.Context) error { return nil }})
	reader := analytics.NewReader(store, 0, 0, nil)
	ollama := ollamaadmin.New("http://127.0.0.1:0")

	return NewServer(store, pipeline, orch, healthRegistry, reader, ollama, config.CorsConfig{})
}

func TestHandlePing(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if healthy, ok := body["healthy"].(bool); !ok || !healthy {
		t.Fatalf("expected overall healthy, got %+v", body)
	}
}

func TestHandleChatRejectsUnknownProvider(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]any{"message": "hi", "provider": "bogus", "temperature": -1})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatReturnsReply(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(map[string]any{"message": "hi", "provider": "openai", "temperature": -1})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["reply"] != "hello back" {
		t.Fatalf("unexpected reply: %+v", body)
	}
}

func TestHandleListKnowledgeEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleCreateAndDeleteKnowledge(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files[]", "note.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("the quick brown fox jumps over the lazy dog"))
	mw.WriteField("knowledgeId", "test-collection")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	delReq := httptest.NewRequest(http.MethodDelete, "/api/knowledge/test-collection", nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRec.Code)
	}
}

func TestHandleGetKnowledgeNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/missing", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAnalyticsAggregatesEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/aggregates", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
