package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ragcore/internal/documents"
	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/chunker"
	"ragcore/internal/rag/vectorstore"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[len(t)%f.dim] = 1
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string              { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func newTestPipeline(t *testing.T) (*Pipeline, *metadatastore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := metadatastore.Open(filepath.Join(dir, "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Pipeline{
		Store:    store,
		Parsers:  documents.NewFactory(),
		Embedder: &fakeEmbedder{dim: 4},
		Vectors:  vectorstore.NewMemoryStore(),
		ChunkOptions: chunker.Options{
			CharacterLimit:   500,
			OverlapTokens:    10,
			MaxCodeFenceSize: 2000,
		},
	}, store
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestIngestProducesDocumentAndChunks(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	path := writeTempFile(t, "note.md", "# Title\n\nSome paragraph text about testing ingestion.\n")

	result, err := p.Ingest(ctx, "docs", "Docs", path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.ChunkCount == 0 {
		t.Fatalf("expected at least one chunk")
	}

	doc, err := store.GetDocument(ctx, result.DocumentId)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.ProcessingStatus != metadatastore.ProcessingComplete {
		t.Fatalf("expected Complete status, got %s", doc.ProcessingStatus)
	}
	if doc.ChunkCount != result.ChunkCount {
		t.Fatalf("document chunk_count %d does not match result %d", doc.ChunkCount, result.ChunkCount)
	}

	chunks, err := store.ListChunksByDocument(ctx, result.DocumentId)
	if err != nil {
		t.Fatalf("ListChunksByDocument: %v", err)
	}
	if len(chunks) != result.ChunkCount {
		t.Fatalf("expected %d chunk rows, got %d", result.ChunkCount, len(chunks))
	}

	collection, err := store.GetCollection(ctx, "docs")
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if collection.DocumentCount != 1 {
		t.Fatalf("expected document_count 1, got %d", collection.DocumentCount)
	}
	if collection.ChunkCount != result.ChunkCount {
		t.Fatalf("expected chunk_count %d, got %d", result.ChunkCount, collection.ChunkCount)
	}
}

func TestIngestReingestIsIdempotent(t *testing.T) {
	p, store := newTestPipeline(t)
	ctx := context.Background()

	path := writeTempFile(t, "note.md", "# Title\n\nSame content every time.\n")

	first, err := p.Ingest(ctx, "docs", "Docs", path)
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := p.Ingest(ctx, "docs", "Docs", path)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if first.DocumentId != second.DocumentId {
		t.Fatalf("expected stable document id across re-ingestion of unchanged content")
	}

	collection, err := store.GetCollection(ctx, "docs")
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if collection.DocumentCount != 1 {
		t.Fatalf("expected document_count to stay 1 after re-ingest, got %d", collection.DocumentCount)
	}
}

func TestIngestUnsupportedExtensionFails(t *testing.T) {
	p, _ := newTestPipeline(t)
	path := writeTempFile(t, "note.exe", "binary")

	if _, err := p.Ingest(context.Background(), "docs", "Docs", path); err == nil {
		t.Fatalf("expected unsupported-format error")
	} else if !strings.Contains(err.Error(), "UnsupportedFormat") {
		t.Fatalf("expected UnsupportedFormat error, got %v", err)
	}
}
