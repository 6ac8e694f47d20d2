package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ragcore/internal/metadatastore"
)

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

func TestAggregatesCachesWithinTTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.RecordUsage(ctx, metadatastore.UsageMetric{
		Provider: "openai", Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 5,
		ResponseTimeMs: 100, Timestamp: time.Now(), Success: true,
	}); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	notified := 0
	reader := NewReader(store, time.Hour, 0, func() { notified++ })

	first, err := reader.Aggregates(ctx)
	if err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one aggregate bucket, got %d", len(first))
	}

	if err := store.RecordUsage(ctx, metadatastore.UsageMetric{
		Provider: "openai", Model: "gpt-4o-mini", PromptTokens: 20, CompletionTokens: 10,
		ResponseTimeMs: 200, Timestamp: time.Now(), Success: true,
	}); err != nil {
		t.Fatalf("RecordUsage second: %v", err)
	}

	second, err := reader.Aggregates(ctx)
	if err != nil {
		t.Fatalf("Aggregates (second): %v", err)
	}
	if second[0].TotalRequests != first[0].TotalRequests {
		t.Fatalf("expected the cached value to be reused within TTL")
	}
	if notified != 1 {
		t.Fatalf("expected exactly one notification, got %d", notified)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	reader := NewReader(store, time.Hour, 0, nil)

	if _, err := reader.Aggregates(ctx); err != nil {
		t.Fatalf("Aggregates: %v", err)
	}
	if err := store.RecordUsage(ctx, metadatastore.UsageMetric{
		Provider: "anthropic", Model: "claude-opus", PromptTokens: 1, CompletionTokens: 1,
		Timestamp: time.Now(), Success: true,
	}); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	reader.Invalidate()

	fresh, err := reader.Aggregates(ctx)
	if err != nil {
		t.Fatalf("Aggregates after invalidate: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("expected the new metric to appear after invalidate, got %d buckets", len(fresh))
	}
}

func TestModelSummariesOrderedByPopularity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.RecordUsage(ctx, metadatastore.UsageMetric{
			Provider: "openai", Model: "gpt-4o-mini", Timestamp: time.Now(), Success: true,
		}); err != nil {
			t.Fatalf("RecordUsage: %v", err)
		}
	}
	if err := store.RecordUsage(ctx, metadatastore.UsageMetric{
		Provider: "anthropic", Model: "claude-opus", Timestamp: time.Now(), Success: true,
	}); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	reader := NewReader(store, time.Hour, 0, nil)
	summaries, err := reader.ModelSummaries(ctx)
	if err != nil {
		t.Fatalf("ModelSummaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected two model summaries, got %d", len(summaries))
	}
	if summaries[0].Model != "gpt-4o-mini" {
		t.Fatalf("expected gpt-4o-mini first by popularity, got %s", summaries[0].Model)
	}
}
