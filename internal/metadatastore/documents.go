package metadatastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "Pending"
	ProcessingInProgress ProcessingStatus = "Processing"
	ProcessingComplete   ProcessingStatus = "Complete"
	ProcessingError      ProcessingStatus = "Error"
)

type FileType string

const (
	FilePDF FileType = "pdf"
	FileDOCX FileType = "docx"
	FileMD   FileType = "md"
	FileTXT  FileType = "txt"
)

// Document mirrors the §3 Document entity.
type Document struct {
	DocumentId       string
	CollectionId     string
	OriginalFileName string
	FileSize         int64
	FileType         FileType
	ChunkCount       int
	ProcessingStatus ProcessingStatus
	ErrorMessage     string
	UploadedAt       time.Time
	ProcessedAt      *time.Time
}

// DeriveDocumentId computes the stable hash of source path + content used
// as DocumentId, so re-ingesting the same source path with unchanged
// content resolves to the same row (§4.F idempotence).
func DeriveDocumentId(sourcePath string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// UpsertDocumentPending inserts or resets a document row to Pending/
// Processing ahead of chunking, the §4.F step-5 checkpoint.
func (s *Store) UpsertDocumentPending(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (document_id, collection_id, original_file_name, file_size, file_type, processing_status)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(document_id) DO UPDATE SET
	original_file_name = excluded.original_file_name,
	file_size = excluded.file_size,
	file_type = excluded.file_type,
	processing_status = excluded.processing_status,
	error_message = ''`,
		doc.DocumentId, doc.CollectionId, doc.OriginalFileName, doc.FileSize, doc.FileType, ProcessingInProgress)
	if err != nil {
		return fmt.Errorf("metadatastore: upsert pending document: %w", err)
	}
	return nil
}

func (s *Store) MarkDocumentError(ctx context.Context, documentId, message string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE documents SET processing_status = ?, error_message = ?, processed_at = CURRENT_TIMESTAMP WHERE document_id = ?`,
		ProcessingError, message, documentId)
	if err != nil {
		return fmt.Errorf("metadatastore: mark document error: %w", err)
	}
	return nil
}

func (s *Store) MarkDocumentComplete(ctx context.Context, documentId string, chunkCount int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE documents SET processing_status = ?, chunk_count = ?, processed_at = CURRENT_TIMESTAMP, error_message = '' WHERE document_id = ?`,
		ProcessingComplete, chunkCount, documentId)
	if err != nil {
		return fmt.Errorf("metadatastore: mark document complete: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, documentId string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT document_id, collection_id, original_file_name, file_size, file_type, chunk_count, processing_status, error_message, uploaded_at, processed_at
FROM documents WHERE document_id = ?`, documentId)
	return scanDocument(row)
}

func (s *Store) ListDocuments(ctx context.Context, collectionId string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT document_id, collection_id, original_file_name, file_size, file_type, chunk_count, processing_status, error_message, uploaded_at, processed_at
FROM documents WHERE collection_id = ? ORDER BY uploaded_at ASC`, collectionId)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list documents: %w", err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocumentCascade removes a document row and (via ON DELETE CASCADE)
// its chunk rows, used by the re-ingest path before reinserting.
func (s *Store) DeleteDocumentCascade(ctx context.Context, documentId string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE document_id = ?`, documentId)
	if err != nil {
		return fmt.Errorf("metadatastore: delete document: %w", err)
	}
	return nil
}

func scanDocument(row scannable) (Document, error) {
	var d Document
	var processedAt *time.Time
	if err := row.Scan(&d.DocumentId, &d.CollectionId, &d.OriginalFileName, &d.FileSize, &d.FileType,
		&d.ChunkCount, &d.ProcessingStatus, &d.ErrorMessage, &d.UploadedAt, &processedAt); err != nil {
		return Document{}, translateNoRows(err)
	}
	d.ProcessedAt = processedAt
	return d, nil
}
