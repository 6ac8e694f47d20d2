package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

const ddl = `
CREATE TABLE IF NOT EXISTS collections (
	collection_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	document_count INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	embedding_model TEXT NOT NULL,
	vector_store_kind TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'Active',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL REFERENCES collections(collection_id) ON DELETE CASCADE,
	original_file_name TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	file_type TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	processing_status TEXT NOT NULL DEFAULT 'Pending',
	error_message TEXT NOT NULL DEFAULT '',
	uploaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	processed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents(collection_id);

CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL REFERENCES collections(collection_id) ON DELETE CASCADE,
	document_id TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
	chunk_text TEXT NOT NULL,
	chunk_order INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	character_count INTEGER NOT NULL,
	vector_stored INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id, chunk_order);
CREATE INDEX IF NOT EXISTS chunks_collection_idx ON chunks(collection_id);

CREATE TABLE IF NOT EXISTS conversations (
	conversation_id TEXT PRIMARY KEY,
	client_id TEXT,
	title TEXT,
	knowledge_id TEXT,
	provider TEXT NOT NULL,
	model_name TEXT NOT NULL,
	temperature REAL NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	is_archived INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER NOT NULL,
	conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER,
	timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	message_index INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, message_index)
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, message_index);

CREATE TABLE IF NOT EXISTS app_settings (
	name TEXT PRIMARY KEY,
	value TEXT,
	encrypted_value BLOB,
	is_encrypted INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	data_type TEXT NOT NULL DEFAULT 'String',
	default_value TEXT
);

CREATE TABLE IF NOT EXISTS usage_metrics (
	id TEXT PRIMARY KEY,
	conversation_id TEXT REFERENCES conversations(conversation_id) ON DELETE SET NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	success INTEGER NOT NULL,
	error_kind TEXT
);
CREATE INDEX IF NOT EXISTS usage_metrics_provider_model_idx ON usage_metrics(provider, model, timestamp);

CREATE TABLE IF NOT EXISTS provider_accounts (
	provider TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	default_model TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

var defaultSettings = []struct {
	name, category, dataType, def string
}{
	{"ChunkCharacterLimit", "ingestion", "Integer", "1200"},
	{"ChunkOverlap", "ingestion", "Integer", "200"},
	{"MaxCodeFenceSize", "ingestion", "Integer", "4000"},
	{"Retrieval.K", "retrieval", "Integer", "8"},
	{"Retrieval.MinScore", "retrieval", "String", "0.6"},
	{"ChatMaxTurns", "chat", "Integer", "10"},
	{"AgentMaxIterations", "chat", "Integer", "5"},
	{"Temperature", "chat", "String", "0.7"},
	{"SystemPrompt", "chat", "String", "You are a helpful assistant. Answer using the provided knowledge base context when it is relevant; say so plainly when it is not."},
	{"SystemPromptWithCoding", "chat", "String", "You are a helpful coding assistant. Answer using the provided knowledge base context when it is relevant; prefer precise, runnable code in your replies."},
	{"Analytics.CacheTTLSeconds", "analytics", "Integer", "30"},
	{"Realtime.MaxQueue", "realtime", "Integer", "256"},
}

// Migrate applies the schema DDL, runs any legacy foreign-key rebuilds, and
// seeds default settings. It is idempotent and safe to call on every
// process start; migration failures are fatal per the component contract.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("metadatastore: apply schema: %w", err)
	}

	if err := s.rebuildLegacyMessagesTable(ctx); err != nil {
		return fmt.Errorf("metadatastore: migrate messages table: %w", err)
	}
	if err := s.rebuildLegacyChunksTable(ctx); err != nil {
		return fmt.Errorf("metadatastore: migrate chunks table: %w", err)
	}

	if err := s.seedDefaultSettings(ctx); err != nil {
		return fmt.Errorf("metadatastore: seed settings: %w", err)
	}

	var applied int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, schemaVersion)
	if err := row.Scan(&applied); err != nil {
		return fmt.Errorf("metadatastore: check migration version: %w", err)
	}
	if applied == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("metadatastore: write migration marker: %w", err)
		}
	}
	return nil
}

// rebuildLegacyMessagesTable detects a messages table built without
// ON DELETE CASCADE on conversation_id (an older schema revision) and
// rebuilds it inside one transaction with foreign keys off: rename the
// original aside, create the current table from the DDL, copy the rows,
// drop the renamed original.
func (s *Store) rebuildLegacyMessagesTable(ctx context.Context) error {
	hasCascade, err := s.foreignKeyHasCascade(ctx, "messages", "conversations")
	if err != nil || hasCascade {
		return err
	}
	return s.withForeignKeysOff(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE messages RENAME TO messages_legacy`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, extractCreateTable(ddl, "messages")); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages SELECT * FROM messages_legacy`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DROP TABLE messages_legacy`)
		return err
	})
}

// rebuildLegacyChunksTable mirrors rebuildLegacyMessagesTable for the
// chunks→documents foreign key.
func (s *Store) rebuildLegacyChunksTable(ctx context.Context) error {
	hasCascade, err := s.foreignKeyHasCascade(ctx, "chunks", "documents")
	if err != nil || hasCascade {
		return err
	}
	return s.withForeignKeysOff(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE chunks RENAME TO chunks_legacy`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, extractCreateTable(ddl, "chunks")); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks SELECT * FROM chunks_legacy`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DROP TABLE chunks_legacy`)
		return err
	})
}

func (s *Store) foreignKeyHasCascade(ctx context.Context, table, references string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return false, err
		}
		rowMap := map[string]any{}
		for i, c := range cols {
			rowMap[c] = vals[i]
		}
		if fmt.Sprint(rowMap["table"]) != references {
			continue
		}
		if on, ok := rowMap["on_delete"].(string); ok && on == "CASCADE" {
			return true, nil
		}
		return false, nil
	}
	// No FK row to the referenced table means there is no legacy
	// constraint to repair, so the table is reported as not needing a
	// rebuild.
	return true, rows.Err()
}

func (s *Store) withForeignKeysOff(ctx context.Context, fn func(*sql.Tx) error) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys=OFF`); err != nil {
		return err
	}
	defer s.db.ExecContext(ctx, `PRAGMA foreign_keys=ON`)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// extractCreateTable pulls a single `CREATE TABLE IF NOT EXISTS name (...)`
// statement out of the schema DDL for reuse inside a rebuild transaction.
func extractCreateTable(schema, table string) string {
	marker := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (", table)
	start := indexOf(schema, marker)
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(schema); i++ {
		switch schema[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return schema[start:i+1] + ";"
			}
		}
	}
	return ""
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func (s *Store) seedDefaultSettings(ctx context.Context) error {
	for _, d := range defaultSettings {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO app_settings (name, value, is_encrypted, category, data_type, default_value)
VALUES (?, ?, 0, ?, ?, ?)
ON CONFLICT(name) DO NOTHING`, d.name, d.def, d.category, d.dataType, d.def)
		if err != nil {
			return err
		}
	}
	return nil
}
