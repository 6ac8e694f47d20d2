package vectorstore

import (
	"context"
	"testing"
)

func TestMemoryStoreUpsertSearchRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.EnsureCollection(ctx, "docs", 3); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}

	vec := []float32{1, 0, 0}
	if err := store.Upsert(ctx, "docs", []Point{{ID: "a", Vector: vec, Metadata: map[string]string{"k": "v"}}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := store.Search(ctx, "docs", vec, 5, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Fatalf("expected id a, got %s", results[0].ID)
	}
	if results[0].Score < 0.999 {
		t.Fatalf("expected score >= 0.999 for an exact match, got %f", results[0].Score)
	}
}

func TestMemoryStoreMinScoreBoundary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.EnsureCollection(ctx, "docs", 2)
	store.Upsert(ctx, "docs", []Point{{ID: "a", Vector: []float32{1, 0}}})

	// Against the query [1, 0]: "b" is orthogonal (similarity 0), "at"
	// ([3, 4]) scores exactly 0.6 and "below" ([599, 800]) scores about
	// 0.5994, which exercises the 0.6 boundary directly.
	store.Upsert(ctx, "docs", []Point{{ID: "b", Vector: []float32{0, 1}}})
	store.Upsert(ctx, "docs", []Point{
		{ID: "at", Vector: []float32{3, 4}},
		{ID: "below", Vector: []float32{599, 800}},
	})

	results, err := store.Search(ctx, "docs", []float32{1, 0}, 10, 0.6)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	kept := map[string]bool{}
	for _, r := range results {
		if r.ID == "b" {
			t.Fatalf("expected orthogonal point to be excluded by minScore, got %v", r)
		}
		if r.ID == "below" {
			t.Fatalf("expected a score just under 0.6 to be excluded by minScore, got %v", r)
		}
		kept[r.ID] = true
	}
	if !kept["a"] || !kept["at"] {
		t.Fatalf("expected scores 1 and exactly 0.6 to be kept, got %v", results)
	}
}

func TestMemoryStoreSearchUnknownCollection(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Search(context.Background(), "missing", []float32{1}, 1, 0)
	if err != ErrCollectionNotFound {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}
