package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"ragcore/internal/analytics"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/rag/vectorstore"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string              { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func newTestStore(t *testing.T) *metadatastore.Store {
	t.Helper()
	store, err := metadatastore.Open(filepath.Join(t.TempDir(), "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRegistrySpecsAndSchemaValidation(t *testing.T) {
	store := newTestStore(t)
	vectors := vectorstore.NewMemoryStore()
	searcher := &retrieval.Searcher{Store: store, Embedder: &fakeEmbedder{dim: 4}, Vectors: vectors}
	reader := analytics.NewReader(store, time.Hour, 0, nil)
	hreg := health.NewRegistry(health.Checker{Name: "metadatastore", Check: store.Ping})

	tools := BuildDefaultTools(store, searcher, 0.6, reader, hreg)
	reg, err := NewRegistry(tools...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	specs := reg.Specs()
	if len(specs) != len(tools) {
		t.Fatalf("expected %d specs, got %d", len(tools), len(specs))
	}

	if _, err := reg.Call(context.Background(), "search_knowledge", json.RawMessage(`{"query":"x"}`)); err == nil {
		t.Fatalf("expected schema validation to fail on missing required collectionId")
	}
}

func TestSearchKnowledgeToolReturnsChunks(t *testing.T) {
	store := newTestStore(t)
	vectors := vectorstore.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.EnsureCollection(ctx, "docs-x", "docs-x", "fake-embed", "memory"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := vectors.EnsureCollection(ctx, "docs-x", 4); err != nil {
		t.Fatalf("vectors.EnsureCollection: %v", err)
	}
	if err := store.UpsertDocumentPending(ctx, metadatastore.Document{
		DocumentId: "doc-1", CollectionId: "docs-x", OriginalFileName: "guide.md", FileType: metadatastore.FileMD,
	}); err != nil {
		t.Fatalf("UpsertDocumentPending: %v", err)
	}
	if err := store.MarkDocumentComplete(ctx, "doc-1", 1); err != nil {
		t.Fatalf("MarkDocumentComplete: %v", err)
	}
	if err := vectors.Upsert(ctx, "docs-x", []vectorstore.Point{{ID: "chunk-1", Vector: []float32{1, 0, 0, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.InsertChunk(ctx, metadatastore.Chunk{
		ChunkId: "chunk-1", CollectionId: "docs-x", DocumentId: "doc-1", ChunkText: "heading B content", VectorStored: true,
	}); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	searcher := &retrieval.Searcher{Store: store, Embedder: &fakeEmbedder{dim: 4}, Vectors: vectors}
	tool := NewSearchKnowledgeTool(searcher, 0.5)

	result, err := tool.Execute(ctx, json.RawMessage(`{"collectionId":"docs-x","query":"B"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", result)
	}
	chunks, ok := out["chunks"].([]chunkSummary)
	if !ok || len(chunks) != 1 {
		t.Fatalf("expected one chunk summary, got %+v", out["chunks"])
	}
	if chunks[0].OriginalFileName != "guide.md" {
		t.Fatalf("unexpected file name: %+v", chunks[0])
	}
}

func TestComponentHealthToolUnknownComponentErrors(t *testing.T) {
	store := newTestStore(t)
	hreg := health.NewRegistry(health.Checker{Name: "metadatastore", Check: store.Ping})
	tool := NewComponentHealthTool(hreg)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"component":"missing"}`)); err == nil {
		t.Fatalf("expected error for unknown component")
	}
}
