package metadatastore

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestEnsureCollectionIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c1, err := s.EnsureCollection(ctx, "docs-x", "docs-x", "nomic-embed-text", "local")
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	c2, err := s.EnsureCollection(ctx, "docs-x", "docs-x", "nomic-embed-text", "local")
	if err != nil {
		t.Fatalf("EnsureCollection (second): %v", err)
	}
	if c1.CreatedAt != c2.CreatedAt {
		t.Fatalf("expected the same row on repeat EnsureCollection")
	}
}

func TestMessageIndicesAreGapFree(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "OpenAi", "gpt-4o", nil, 0.7)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	roles := []Role{RoleSystem, RoleUser, RoleAssistant, RoleUser, RoleAssistant}
	for i, r := range roles {
		msg, err := s.AppendMessage(ctx, conv.ConversationId, r, "content", nil)
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.MessageIndex != i {
			t.Fatalf("message %d got index %d, want %d", i, msg.MessageIndex, i)
		}
	}

	msgs, err := s.ListMessages(ctx, conv.ConversationId)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for i, m := range msgs {
		if m.MessageIndex != i {
			t.Fatalf("gap in message indices at position %d: got %d", i, m.MessageIndex)
		}
	}
}

func TestLoadHistorySlidingWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "OpenAi", "gpt-4o", nil, 0.7)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if _, err := s.AppendMessage(ctx, conv.ConversationId, RoleSystem, "system prompt", nil); err != nil {
		t.Fatalf("AppendMessage system: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.AppendMessage(ctx, conv.ConversationId, RoleUser, "question", nil); err != nil {
			t.Fatalf("AppendMessage user: %v", err)
		}
		if _, err := s.AppendMessage(ctx, conv.ConversationId, RoleAssistant, "answer", nil); err != nil {
			t.Fatalf("AppendMessage assistant: %v", err)
		}
	}

	history, err := s.LoadHistory(ctx, conv.ConversationId, 3)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 7 {
		t.Fatalf("expected 7 messages (1 system + 3 pairs), got %d", len(history))
	}
	if history[0].Role != RoleSystem {
		t.Fatalf("expected system message at position 0, got %s", history[0].Role)
	}
}

func TestSettingEncryptionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetEncryptedSetting(ctx, "OpenAI.ApiKey", "sk-secret", "providers", DataTypeString); err != nil {
		t.Fatalf("SetEncryptedSetting: %v", err)
	}
	got, err := s.GetSettingValue(ctx, "OpenAI.ApiKey")
	if err != nil {
		t.Fatalf("GetSettingValue: %v", err)
	}
	if got != "sk-secret" {
		t.Fatalf("got %q, want sk-secret", got)
	}
}

func TestDeleteCollectionCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureCollection(ctx, "docs-x", "docs-x", "model", "local"); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := s.UpsertDocumentPending(ctx, Document{DocumentId: "d1", CollectionId: "docs-x", OriginalFileName: "a.md", FileType: FileMD}); err != nil {
		t.Fatalf("UpsertDocumentPending: %v", err)
	}
	if err := s.InsertChunk(ctx, Chunk{ChunkId: "c1", CollectionId: "docs-x", DocumentId: "d1", ChunkText: "hello", ChunkOrder: 0, VectorStored: true}); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	if err := s.DeleteCollection(ctx, "docs-x"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if _, err := s.GetDocument(ctx, "d1"); err != ErrNotFound {
		t.Fatalf("expected document to cascade-delete, got err=%v", err)
	}
}
