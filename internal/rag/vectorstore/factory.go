package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"ragcore/internal/config"
)

// NewFromConfig selects the Qdrant, MongoDB or in-memory backend named by
// cfg.VectorStore.Provider.
func NewFromConfig(ctx context.Context, cfg config.Config) (VectorStore, error) {
	switch strings.ToLower(cfg.VectorStore.Provider) {
	case "", "qdrant":
		return NewQdrantStore(cfg.VectorStore.Qdrant.Host, cfg.VectorStore.Qdrant.GRPCPort, cfg.VectorStore.Qdrant.RESTPort)
	case "mongodb", "mongo":
		return NewMongoStore(ctx, cfg.VectorStore.Mongo.URI, cfg.VectorStore.Mongo.Database, cfg.VectorStore.Mongo.IndexName)
	case "in-memory", "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("vectorstore: unsupported provider %q", cfg.VectorStore.Provider)
	}
}
