package metadatastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type CollectionStatus string

const (
	CollectionActive     CollectionStatus = "Active"
	CollectionProcessing CollectionStatus = "Processing"
	CollectionError      CollectionStatus = "Error"
	CollectionDeleted    CollectionStatus = "Deleted"
)

// Collection mirrors the §3 Collection entity (knowledge base).
type Collection struct {
	CollectionId    string
	Name            string
	Description     string
	DocumentCount   int
	ChunkCount      int
	EmbeddingModel  string
	VectorStoreKind string
	Status          CollectionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EnsureCollection inserts the collection row if it does not already exist,
// returning the (possibly pre-existing) row. Ingestion calls this before its
// first write for a collection name so repeated ingests into the same
// knowledge base share one row.
func (s *Store) EnsureCollection(ctx context.Context, collectionId, name, embeddingModel, vectorStoreKind string) (Collection, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO collections (collection_id, name, embedding_model, vector_store_kind, status)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(collection_id) DO NOTHING`, collectionId, name, embeddingModel, vectorStoreKind, CollectionActive)
	if err != nil {
		return Collection{}, fmt.Errorf("metadatastore: ensure collection: %w", err)
	}
	return s.GetCollection(ctx, collectionId)
}

func (s *Store) GetCollection(ctx context.Context, collectionId string) (Collection, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT collection_id, name, description, document_count, chunk_count, embedding_model, vector_store_kind, status, created_at, updated_at
FROM collections WHERE collection_id = ?`, collectionId)
	return scanCollection(row)
}

func (s *Store) ListCollections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT collection_id, name, description, document_count, chunk_count, embedding_model, vector_store_kind, status, created_at, updated_at
FROM collections WHERE status != ? ORDER BY created_at DESC`, CollectionDeleted)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list collections: %w", err)
	}
	defer rows.Close()

	out := []Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection deletes the collection row; ON DELETE CASCADE removes
// its documents and chunks. Returns ErrNotFound when no row matched. The
// matching vector-store collection deletion is
// the caller's responsibility (ingestion/admin layer), performed in the
// same logical operation per the §3 lifecycle rule.
func (s *Store) DeleteCollection(ctx context.Context, collectionId string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE collection_id = ?`, collectionId)
	if err != nil {
		return fmt.Errorf("metadatastore: delete collection: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BumpCollectionCounts adjusts the denormalized document/chunk counts by the
// given deltas, called once per ingestion checkpoint (§4.F step 7).
func (s *Store) BumpCollectionCounts(ctx context.Context, collectionId string, documentDelta, chunkDelta int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE collections
SET document_count = document_count + ?, chunk_count = chunk_count + ?, updated_at = CURRENT_TIMESTAMP
WHERE collection_id = ?`, documentDelta, chunkDelta, collectionId)
	if err != nil {
		return fmt.Errorf("metadatastore: bump collection counts: %w", err)
	}
	return nil
}

func (s *Store) SetCollectionStatus(ctx context.Context, collectionId string, status CollectionStatus) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE collections SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE collection_id = ?`, status, collectionId)
	if err != nil {
		return fmt.Errorf("metadatastore: set collection status: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCollection(row scannable) (Collection, error) {
	var c Collection
	if err := row.Scan(&c.CollectionId, &c.Name, &c.Description, &c.DocumentCount, &c.ChunkCount,
		&c.EmbeddingModel, &c.VectorStoreKind, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Collection{}, translateNoRows(err)
	}
	return c, nil
}

// translateNoRows maps sql.ErrNoRows to the package's ErrNotFound so
// repository callers get one sentinel error regardless of which query
// produced the empty result.
func translateNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
