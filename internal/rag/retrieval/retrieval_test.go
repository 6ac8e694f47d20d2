package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/vectorstore"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		if strings.Contains(t, "needle") {
			v[0] = 1
		} else {
			v[f.dim-1] = 1
		}
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string              { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

func newTestSearcher(t *testing.T) (*Searcher, *metadatastore.Store, vectorstore.VectorStore) {
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

	vectors := vectorstore.NewMemoryStore()
	return &Searcher{Store: store, Embedder: &fakeEmbedder{dim: 4}, Vectors: vectors}, store, vectors
}

func seedChunk(t *testing.T, store *metadatastore.Store, vectors vectorstore.VectorStore, collectionId, chunkId, docId, fileName, text string, vector []float32) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.EnsureCollection(ctx, collectionId, collectionId, "fake-embed", "memory"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := vectors.EnsureCollection(ctx, collectionId, len(vector)); err != nil {
		t.Fatalf("vectors.EnsureCollection: %v", err)
	}
	if err := store.UpsertDocumentPending(ctx, metadatastore.Document{
		DocumentId:       docId,
		CollectionId:     collectionId,
		OriginalFileName: fileName,
		FileType:         metadatastore.FileMD,
	}); err != nil {
		t.Fatalf("UpsertDocumentPending: %v", err)
	}
	if err := store.MarkDocumentComplete(ctx, docId, 1); err != nil {
		t.Fatalf("MarkDocumentComplete: %v", err)
	}
	if err := vectors.Upsert(ctx, collectionId, []vectorstore.Point{{ID: chunkId, Vector: vector}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.InsertChunk(ctx, metadatastore.Chunk{
		ChunkId:      chunkId,
		CollectionId: collectionId,
		DocumentId:   docId,
		ChunkText:    text,
		VectorStored: true,
	}); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}
}

func TestSearchReturnsHydratedHitAboveMinScore(t *testing.T) {
	searcher, store, vectors := newTestSearcher(t)
	seedChunk(t, store, vectors, "docs-x", "chunk-1", "doc-1", "guide.md", "contains the needle phrase", []float32{1, 0, 0, 0})
	seedChunk(t, store, vectors, "docs-x", "chunk-2", "doc-1", "guide.md", "unrelated text", []float32{0, 0, 0, 1})

	hits, err := searcher.Search(context.Background(), "docs-x", "find the needle", 8, 0.9)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected exactly one hit above minScore, got %d", len(hits))
	}
	if hits[0].ChunkId != "chunk-1" || hits[0].OriginalFileName != "guide.md" {
		t.Fatalf("unexpected hit: %+v", hits[0])
	}
}

func TestSearchAllMergesAcrossCollections(t *testing.T) {
	searcher, store, vectors := newTestSearcher(t)
	seedChunk(t, store, vectors, "docs-a", "chunk-a", "doc-a", "a.md", "needle in a", []float32{1, 0, 0, 0})
	seedChunk(t, store, vectors, "docs-b", "chunk-b", "doc-b", "b.md", "needle in b", []float32{1, 0, 0, 0})

	hits, err := searcher.SearchAll(context.Background(), "needle", 8, 0.5)
	if err != nil {
		t.Fatalf("SearchAll: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected hits merged from both collections, got %d", len(hits))
	}
}

func TestFormatContextBlockEmptyWhenNoHits(t *testing.T) {
	if got := FormatContextBlock(nil, "\n"); got != "" {
		t.Fatalf("expected empty context block, got %q", got)
	}
}

func TestFormatContextBlockJoinsHitsWithDelimiter(t *testing.T) {
	hits := []Hit{
		{OriginalFileName: "a.md", Score: 0.91, ChunkText: "alpha"},
		{OriginalFileName: "b.md", Score: 0.80, ChunkText: "beta"},
	}
	got := FormatContextBlock(hits, "|")
	if !strings.Contains(got, "alpha") || !strings.Contains(got, "beta") || !strings.Contains(got, "|") {
		t.Fatalf("unexpected context block: %q", got)
	}
}
