package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message mirrors the §3 Message entity. MessageIndex is assigned
// server-side as max(existing)+1, keeping the per-conversation sequence
// gap-free (§8 quantified invariant).
type Message struct {
	Id             int64
	ConversationId string
	Role           Role
	Content        string
	TokenCount     *int
	Timestamp      time.Time
	MessageIndex   int
}

// AppendMessage inserts the next message for a conversation inside a short
// transaction that computes MessageIndex = max(existing)+1, so two
// concurrent appends (guarded by the caller's conversation lock, but
// defended here too) never collide on the same index.
func (s *Store) AppendMessage(ctx context.Context, conversationId string, role Role, content string, tokenCount *int) (Message, error) {
	var msg Message
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var nextIndex int
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(message_index), -1) + 1 FROM messages WHERE conversation_id = ?`, conversationId)
		if err := row.Scan(&nextIndex); err != nil {
			return fmt.Errorf("compute next message index: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO messages (conversation_id, role, content, token_count, message_index)
VALUES (?, ?, ?, ?, ?)`, conversationId, role, content, tokenCount, nextIndex)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = CURRENT_TIMESTAMP WHERE conversation_id = ?`, conversationId); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		msg = Message{Id: id, ConversationId: conversationId, Role: role, Content: content, TokenCount: tokenCount, MessageIndex: nextIndex}
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("metadatastore: append message: %w", err)
	}
	return msg, nil
}

// ListMessages returns every message for a conversation ordered by
// MessageIndex ascending.
func (s *Store) ListMessages(ctx context.Context, conversationId string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, conversation_id, role, content, token_count, timestamp, message_index
FROM messages WHERE conversation_id = ? ORDER BY message_index ASC`, conversationId)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: list messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ConversationId, &m.Role, &m.Content, &m.TokenCount, &m.Timestamp, &m.MessageIndex); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LoadHistory returns the last maxTurns user/assistant pairs plus the most
// recent system message (always injected at position 0 if present),
// implementing the §4.H sliding-window reducer. The returned slice never
// exceeds maxTurns*2 + 1 messages.
func (s *Store) LoadHistory(ctx context.Context, conversationId string, maxTurns int) ([]Message, error) {
	all, err := s.ListMessages(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	var system *Message
	var turns []Message
	for i := range all {
		m := all[i]
		if m.Role == RoleSystem {
			system = &m
			continue
		}
		turns = append(turns, m)
	}

	maxMessages := maxTurns * 2
	if len(turns) > maxMessages {
		turns = turns[len(turns)-maxMessages:]
	}

	out := make([]Message, 0, len(turns)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, turns...)
	return out, nil
}

// AttachSystemMarker places conversationId into the content of the first
// system message (inserting one if none exists yet), so downstream
// components (tools, the MCP surface) can recover the conversation id from
// the message stream alone.
func (s *Store) AttachSystemMarker(ctx context.Context, conversationId, basePrompt string) error {
	marker := fmt.Sprintf("%s\n\n[conversation:%s]", basePrompt, conversationId)
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var existingIndex sql.NullInt64
		row := tx.QueryRowContext(ctx, `SELECT message_index FROM messages WHERE conversation_id = ? AND role = ? ORDER BY message_index ASC LIMIT 1`, conversationId, RoleSystem)
		err := row.Scan(&existingIndex)
		switch {
		case err == sql.ErrNoRows:
			var nextIndex int
			r2 := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(message_index), -1) + 1 FROM messages WHERE conversation_id = ?`, conversationId)
			if err := r2.Scan(&nextIndex); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `INSERT INTO messages (conversation_id, role, content, message_index) VALUES (?, ?, ?, ?)`,
				conversationId, RoleSystem, marker, nextIndex)
			return err
		case err != nil:
			return err
		default:
			_, err = tx.ExecContext(ctx, `UPDATE messages SET content = ? WHERE conversation_id = ? AND message_index = ?`,
				marker, conversationId, existingIndex.Int64)
			return err
		}
	})
}
