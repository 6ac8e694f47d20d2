package metadatastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation mirrors the §3 Conversation entity.
type Conversation struct {
	ConversationId string
	ClientId       *string
	Title          *string
	KnowledgeId    *string
	Provider       string
	ModelName      string
	Temperature    float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	IsArchived     bool
}

// CreateConversation inserts a new conversation row with a fresh v4 id.
func (s *Store) CreateConversation(ctx context.Context, provider, modelName string, knowledgeId *string, temperature float64) (Conversation, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (conversation_id, knowledge_id, provider, model_name, temperature)
VALUES (?, ?, ?, ?, ?)`, id, knowledgeId, provider, modelName, temperature)
	if err != nil {
		return Conversation{}, fmt.Errorf("metadatastore: create conversation: %w", err)
	}
	return s.GetConversation(ctx, id)
}

func (s *Store) GetConversation(ctx context.Context, conversationId string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT conversation_id, client_id, title, knowledge_id, provider, model_name, temperature, created_at, updated_at, is_archived
FROM conversations WHERE conversation_id = ?`, conversationId)

	var c Conversation
	var archived int
	if err := row.Scan(&c.ConversationId, &c.ClientId, &c.Title, &c.KnowledgeId, &c.Provider, &c.ModelName,
		&c.Temperature, &c.CreatedAt, &c.UpdatedAt, &archived); err != nil {
		return Conversation{}, translateNoRows(err)
	}
	c.IsArchived = archived != 0
	return c, nil
}

// TouchConversation bumps UpdatedAt. AppendMessage already does this inside
// its own transaction.
func (s *Store) TouchConversation(ctx context.Context, conversationId string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE conversation_id = ?`, conversationId)
	if err != nil {
		return fmt.Errorf("metadatastore: touch conversation: %w", err)
	}
	return nil
}

func (s *Store) RenameConversation(ctx context.Context, conversationId, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = CURRENT_TIMESTAMP WHERE conversation_id = ?`, title, conversationId)
	if err != nil {
		return fmt.Errorf("metadatastore: rename conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConversationLock acquires the per-conversation mutex and returns its
// unlock function; callers hold it around a full Ask turn so concurrent Ask calls for the same conversation never
// interleave message writes (§5 ordering guarantee).
func (s *Store) ConversationLock(conversationId string) func() {
	m := s.conversationLock(conversationId)
	m.Lock()
	return m.Unlock
}

// CollectionLock serializes ingestion writes for one collection (§5).
func (s *Store) CollectionLock(collectionId string) func() {
	m := s.collectionLock(collectionId)
	m.Lock()
	return m.Unlock
}
