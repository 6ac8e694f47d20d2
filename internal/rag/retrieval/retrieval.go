// Package retrieval implements the §4.E query path shared by the chat
// orchestrator and the agent tool layer: embed a query, search a
// collection's vector points, then hydrate the hits back into full chunk
// rows via the metadata store.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"ragcore/internal/apperr"
	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/embedder"
	"ragcore/internal/rag/vectorstore"
)

// Hit is one ranked, hydrated search result.
type Hit struct {
	ChunkId          string
	DocumentId       string
	OriginalFileName string
	ChunkText        string
	Score            float64
}

// Searcher runs top-k retrieval against one collection.
type Searcher struct {
	Store    *metadatastore.Store
	Embedder embedder.Embedder
	Vectors  vectorstore.VectorStore
}

// Search embeds query, searches collectionId for the k nearest points with
// score >= minScore, and hydrates each hit's chunk text and source file
// name. Results are ordered by descending score, matching the vector
// store's own ordering guarantee.
func (s *Searcher) Search(ctx context.Context, collectionId, query string, k int, minScore float64) ([]Hit, error) {
	if k <= 0 {
		k = 8
	}
	vectors, err := s.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderFailed, "embed retrieval query", err)
	}

	results, err := s.Vectors.Search(ctx, collectionId, vectors[0], k, minScore)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	chunks, err := s.Store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hydrate search hits", err)
	}

	documentNames := map[string]string{}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		chunk, ok := chunks[r.ID]
		if !ok {
			continue
		}
		name, ok := documentNames[chunk.DocumentId]
		if !ok {
			doc, err := s.Store.GetDocument(ctx, chunk.DocumentId)
			if err == nil {
				name = doc.OriginalFileName
			}
			documentNames[chunk.DocumentId] = name
		}
		hits = append(hits, Hit{
			ChunkId:          chunk.ChunkId,
			DocumentId:       chunk.DocumentId,
			OriginalFileName: name,
			ChunkText:        chunk.ChunkText,
			Score:            r.Score,
		})
	}
	return hits, nil
}

// SearchAll fans out Search across every Active collection and merges hits
// by descending score, per §4.J's search_all_knowledge tool.
func (s *Searcher) SearchAll(ctx context.Context, query string, k int, minScore float64) ([]Hit, error) {
	collections, err := s.Store.ListCollections(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list collections", err)
	}

	var merged []Hit
	for _, c := range collections {
		if c.Status != metadatastore.CollectionActive {
			continue
		}
		hits, err := s.Search(ctx, c.CollectionId, query, k, minScore)
		if err != nil {
			continue
		}
		merged = append(merged, hits...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// FormatContextBlock renders hits as the §4.I retrieval context block: each
// hit as "(documentFileName, score, text)" joined by delimiter. An empty
// hit slice renders the empty string so the caller can detect "no context".
func FormatContextBlock(hits []Hit, delimiter string) string {
	if len(hits) == 0 {
		return ""
	}
	if delimiter == "" {
		delimiter = "\n---\n"
	}
	out := ""
	for i, h := range hits {
		if i > 0 {
			out += delimiter
		}
		out += fmt.Sprintf("(%s, %.3f, %s)", h.OriginalFileName, h.Score, h.ChunkText)
	}
	return out
}
