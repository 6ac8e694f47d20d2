// Package ingest wires source resolution, parsing, chunking, embedding and
// vector storage into the single Ingest operation (component F).
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ragcore/internal/apperr"
	"ragcore/internal/documents"
	"ragcore/internal/metadatastore"
	"ragcore/internal/objectstore"
	"ragcore/internal/rag/chunker"
	"ragcore/internal/rag/embedder"
	"ragcore/internal/rag/vectorstore"
)

// Result is what one Ingest call reports back to its caller.
type Result struct {
	DocumentId string
	ChunkCount int
}

// Pipeline holds the components a single ingestion call needs. One Pipeline
// is shared across requests; CollectionLock guards concurrent ingests into
// the same collection.
type Pipeline struct {
	Store    *metadatastore.Store
	Parsers  *documents.Factory
	Embedder embedder.Embedder
	Vectors  vectorstore.VectorStore
	Buckets  objectstore.BucketClient

	ChunkOptions chunker.Options
}

// Ingest resolves ref (a local path or s3://bucket/key URI), parses it with
// the parser registered for its extension, splits it into chunks, embeds
// and upserts each chunk's vector, then records the document and chunk rows.
//
// Re-ingesting the same ref with unchanged bytes keeps the derived
// DocumentId, so the existing row is reset to Processing and its old chunks
// are dropped before the new ones are written.
func (p *Pipeline) Ingest(ctx context.Context, collectionId, collectionName, ref string) (Result, error) {
	src, err := documents.ResolveSource(ref, p.Buckets)
	if err != nil {
		return Result{}, err
	}

	parser, err := p.Parsers.Resolve(src.Extension())
	if err != nil {
		return Result{}, err
	}

	rc, err := src.Open(ctx)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.NotFound, "open ingestion source", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "read ingestion source", err)
	}

	doc, err := parser.Parse(src.Name, bytes.NewReader(content))
	if err != nil {
		return Result{}, err
	}

	chunks, err := chunker.Chunk(doc, p.ChunkOptions)
	if err != nil {
		return Result{}, err
	}

	documentId := metadatastore.DeriveDocumentId(ref, content)
	unlock := p.Store.CollectionLock(collectionId)
	defer unlock()

	logger := log.With().Str("collection_id", collectionId).Str("document_id", documentId).Logger()

	if _, err := p.Store.EnsureCollection(ctx, collectionId, collectionName, p.Embedder.Name(), vectorStoreKind(p.Vectors)); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "ensure collection row", err)
	}
	if err := p.Vectors.EnsureCollection(ctx, collectionId, p.Embedder.Dimension()); err != nil {
		return Result{}, err
	}

	previous, err := p.Store.ListChunksByDocument(ctx, documentId)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "list previous chunks", err)
	}
	previousCount := len(previous)
	if previousCount > 0 {
		if err := p.Store.DeleteDocumentCascade(ctx, documentId); err != nil {
			return Result{}, apperr.Wrap(apperr.Internal, "delete previous document", err)
		}
		ids := make([]string, len(previous))
		for i, c := range previous {
			ids[i] = c.ChunkId
		}
		if err := p.Vectors.Delete(ctx, collectionId, ids); err != nil {
			return Result{}, err
		}
	}

	fileType, _ := detectFileType(src.Extension())
	if err := p.Store.UpsertDocumentPending(ctx, metadatastore.Document{
		DocumentId:       documentId,
		CollectionId:     collectionId,
		OriginalFileName: src.Name,
		FileSize:         int64(len(content)),
		FileType:         fileType,
	}); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "upsert pending document", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		markErr := p.Store.MarkDocumentError(ctx, documentId, err.Error())
		if markErr != nil {
			logger.Error().Err(markErr).Msg("failed to record document ingestion error")
		}
		return Result{}, err
	}

	for i, c := range chunks {
		chunkId := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", documentId, c.ChunkOrder))).String()

		// Vector point is upserted before the chunk row so a crash between
		// the two writes leaves an orphan point, never a dangling row.
		if err := p.Vectors.Upsert(ctx, collectionId, []vectorstore.Point{{
			ID:     chunkId,
			Vector: vectors[i],
			Metadata: map[string]string{
				"document_id": documentId,
				"chunk_order": fmt.Sprintf("%d", c.ChunkOrder),
			},
		}}); err != nil {
			markErr := p.Store.MarkDocumentError(ctx, documentId, err.Error())
			if markErr != nil {
				logger.Error().Err(markErr).Msg("failed to record document ingestion error")
			}
			return Result{}, err
		}

		if err := p.Store.InsertChunk(ctx, metadatastore.Chunk{
			ChunkId:        chunkId,
			CollectionId:   collectionId,
			DocumentId:     documentId,
			ChunkText:      c.Text,
			ChunkOrder:     c.ChunkOrder,
			TokenCount:     c.TokenCount,
			CharacterCount: c.CharacterCount,
			VectorStored:   true,
		}); err != nil {
			return Result{}, apperr.Wrap(apperr.Internal, "insert chunk row", err)
		}
	}

	if err := p.Store.MarkDocumentComplete(ctx, documentId, len(chunks)); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "mark document complete", err)
	}

	documentDelta := 1
	if previousCount > 0 {
		documentDelta = 0
	}
	chunkDelta := len(chunks) - previousCount
	if err := p.Store.BumpCollectionCounts(ctx, collectionId, documentDelta, chunkDelta); err != nil {
		return Result{}, apperr.Wrap(apperr.Internal, "bump collection counts", err)
	}

	logger.Info().Int("chunk_count", len(chunks)).Msg("ingestion complete")
	return Result{DocumentId: documentId, ChunkCount: len(chunks)}, nil
}

func vectorStoreKind(store vectorstore.VectorStore) string {
	switch store.(type) {
	case *vectorstore.QdrantStore:
		return "Qdrant"
	case *vectorstore.MongoStore:
		return "MongoDB"
	default:
		return "memory"
	}
}

func detectFileType(ext string) (metadatastore.FileType, bool) {
	switch ext {
	case ".pdf":
		return metadatastore.FilePDF, true
	case ".docx":
		return metadatastore.FileDOCX, true
	case ".md":
		return metadatastore.FileMD, true
	case ".txt":
		return metadatastore.FileTXT, true
	default:
		return metadatastore.FileTXT, false
	}
}
