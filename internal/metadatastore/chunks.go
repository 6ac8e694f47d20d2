package metadatastore

import (
	"context"
	"fmt"
	"strings"
)

// Chunk mirrors the §3 Chunk entity.
type Chunk struct {
	ChunkId        string
	CollectionId   string
	DocumentId     string
	ChunkText      string
	ChunkOrder     int
	TokenCount     int
	CharacterCount int
	VectorStored   bool
}

// InsertChunk writes one chunk row. Callers insert a chunk only after its
// vector point has been upserted (§9 ingestion ordering note): a crash
// between those two writes leaves an orphan vector point, not a dangling
// chunk row pointing at nothing.
func (s *Store) InsertChunk(ctx context.Context, c Chunk) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chunks (chunk_id, collection_id, document_id, chunk_text, chunk_order, token_count, character_count, vector_stored)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
	chunk_text = excluded.chunk_text,
	chunk_order = excluded.chunk_order,
	token_count = excluded.token_count,
	character_count = excluded.character_count,
	vector_stored = excluded.vector_stored`,
		c.ChunkId, c.CollectionId, c.DocumentId, c.ChunkText, c.ChunkOrder, c.TokenCount, c.CharacterCount, c.VectorStored)
	if err != nil {
		return fmt.Errorf("metadatastore: insert chunk: %w", err)
	}
	return nil
}

// ListChunksByDocument returns a document's chunks in dense ChunkOrder.
func (s *Store) ListChunksByDocument(ctx context.Context, documentId string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, collection_id, document_id, chunk_text, chunk_order, token_count, character_count, vector_stored
FROM chunks WHERE document_id = ? ORDER BY chunk_order ASC`, documentId)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list chunks: %w", err)
	}
	defer rows.Close()

	out := []Chunk{}
	for rows.Next() {
		var c Chunk
		var vectorStored int
		if err := rows.Scan(&c.ChunkId, &c.CollectionId, &c.DocumentId, &c.ChunkText, &c.ChunkOrder,
			&c.TokenCount, &c.CharacterCount, &vectorStored); err != nil {
			return nil, err
		}
		c.VectorStored = vectorStored != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChunksByIDs fetches chunk rows by id, for hydrating vector search hits
// (the vector store only carries a point id plus a thin metadata map) back
// into their full text and bookkeeping fields. Missing ids are omitted
// rather than erroring.
func (s *Store) GetChunksByIDs(ctx context.Context, chunkIds []string) (map[string]Chunk, error) {
	out := map[string]Chunk{}
	if len(chunkIds) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(chunkIds))
	args := make([]any, len(chunkIds))
	for i, id := range chunkIds {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
SELECT chunk_id, collection_id, document_id, chunk_text, chunk_order, token_count, character_count, vector_stored
FROM chunks WHERE chunk_id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: get chunks by id: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Chunk
		var vectorStored int
		if err := rows.Scan(&c.ChunkId, &c.CollectionId, &c.DocumentId, &c.ChunkText, &c.ChunkOrder,
			&c.TokenCount, &c.CharacterCount, &vectorStored); err != nil {
			return nil, err
		}
		c.VectorStored = vectorStored != 0
		out[c.ChunkId] = c
	}
	return out, rows.Err()
}

// CountChunks returns the chunk row count for a collection. Nothing in the
// module calls it.
func (s *Store) CountChunks(ctx context.Context, collectionId string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection_id = ?`, collectionId)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("metadatastore: count chunks: %w", err)
	}
	return n, nil
}
