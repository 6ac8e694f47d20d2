// Package vectorstore implements component E of the ingestion pipeline: a
// capability interface over whichever vector backend is configured
// (local Qdrant over gRPC, or a MongoDB Atlas $vectorSearch collection),
// generalized to manage many named collections from one client instead of
// binding one collection per client instance.
package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned by MemoryStore.Search when the named
// collection has never been created with EnsureCollection. MemoryStore's
// Upsert creates a missing collection and its Delete treats one as empty;
// the Qdrant and MongoDB backends do not return this error.
var ErrCollectionNotFound = errors.New("vectorstore: collection not found")

// Point is one vector with its opaque id and string-keyed metadata,
// mirroring the §3 Chunk fields carried alongside each embedding.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore is the capability surface both backends implement.
type VectorStore interface {
	// EnsureCollection creates the named collection with the given vector
	// dimension if it does not already exist. Idempotent.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// ListCollections returns every collection name known to the backend.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes a collection and every point in it.
	DeleteCollection(ctx context.Context, collection string) error

	// Upsert writes or replaces points by id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes points by id. Missing ids are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// Search returns the k nearest points to vector, ordered by descending
	// score, filtered to scores >= minScore.
	Search(ctx context.Context, collection string, vector []float32, k int, minScore float64) ([]SearchResult, error)

	// Ping verifies connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases the backend's connection resources.
	Close() error
}
