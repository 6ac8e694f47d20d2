package chat

import (
	"context"
	"path/filepath"
	"testing"

	"ragcore/internal/agent"
	"ragcore/internal/analytics"
	"ragcore/internal/apperr"
	"ragcore/internal/llm"
	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/rag/vectorstore"
)

func newTestStore(t *testing.T) *metadatastore.Store {
	t.Helper()
	store, err := metadatastore.Open(filepath.Join(t.TempDir(), "test.db"), "test-passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string              { return "fake-embed" }
func (f *fakeEmbedder) Dimension() int             { return f.dim }
func (f *fakeEmbedder) Ping(context.Context) error { return nil }

type fakeProvider struct {
	reply llm.Message
	usage llm.Usage
	err   error
}

func (f *fakeProvider) Complete(context.Context, []llm.Message, float64, []llm.ToolSchema) (llm.Message, llm.Usage, error) {
	return f.reply, f.usage, f.err
}
func (f *fakeProvider) CompleteStreaming(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema, h llm.StreamHandler) error {
	if f.err != nil {
		return f.err
	}
	return h(llm.StreamDelta{Text: f.reply.Content, Done: true, Usage: f.usage})
}
func (f *fakeProvider) SupportsTools(context.Context) bool { return false }
func (f *fakeProvider) Name() string                       { return "fake" }

type fakeProviderFactory struct{ provider llm.Provider }

func (f *fakeProviderFactory) Get(string, string) (llm.Provider, error) { return f.provider, nil }

func newTestOrchestrator(t *testing.T, provider llm.Provider) (*Orchestrator, *metadatastore.Store) {
	t.Helper()
	store := newTestStore(t)
	vectors := vectorstore.NewMemoryStore()
	searcher := &retrieval.Searcher{Store: store, Embedder: &fakeEmbedder{dim: 4}, Vectors: vectors}
	reader := analytics.NewReader(store, 0, 0, nil)
	reg, err := agent.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return &Orchestrator{
		Store:     store,
		Providers: &fakeProviderFactory{provider: provider},
		Searcher:  searcher,
		Tools:     reg,
		Analytics: reader,
		Delimiter: "\n---\n",
	}, store
}

func TestAskCreatesConversationAndPersistsMessages(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeProvider{
		reply: llm.Message{Role: "assistant", Content: "fixed answer"},
		usage: llm.Usage{PromptTokens: 5, CompletionTokens: 3},
	})

	resp, err := o.Ask(context.Background(), Request{
		Message:  "hello there",
		Provider: "fake",
		Model:    "fake-model",
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Reply != "fixed answer" {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
	if resp.ConversationId == "" {
		t.Fatalf("expected a conversation id")
	}

	msgs, err := store.ListMessages(context.Background(), resp.ConversationId)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	var roles []metadatastore.Role
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	if len(roles) != 3 || roles[0] != metadatastore.RoleSystem || roles[1] != metadatastore.RoleUser || roles[2] != metadatastore.RoleAssistant {
		t.Fatalf("unexpected message roles: %+v", roles)
	}
}

func TestAskStripsMarkdownWhenRequested(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeProvider{
		reply: llm.Message{Role: "assistant", Content: "**bold** and `code`"},
	})

	resp, err := o.Ask(context.Background(), Request{
		Message:       "hi",
		Provider:      "fake",
		Model:         "fake-model",
		StripMarkdown: true,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Reply != "bold and code" {
		t.Fatalf("expected stripped reply, got %q", resp.Reply)
	}
}

func TestAskReturnsProviderFailedOnProviderError(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeProvider{err: context.DeadlineExceeded})

	_, err := o.Ask(context.Background(), Request{Message: "hi", Provider: "fake", Model: "fake-model"})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if kind := apperr.KindOf(err); kind != apperr.ProviderFailed {
		t.Fatalf("expected ProviderFailed, got %s", kind)
	}
}

func TestAskStreamingDeliversDeltasAndPersistsAccumulated(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeProvider{
		reply: llm.Message{Role: "assistant", Content: "streamed reply"},
		usage: llm.Usage{PromptTokens: 2, CompletionTokens: 2},
	})

	var got string
	convId, err := o.AskStreaming(context.Background(), Request{Message: "hi", Provider: "fake", Model: "fake-model"}, func(d llm.StreamDelta) error {
		got += d.Text
		return nil
	})
	if err != nil {
		t.Fatalf("AskStreaming: %v", err)
	}
	if got != "streamed reply" {
		t.Fatalf("unexpected streamed content: %q", got)
	}

	msgs, err := store.ListMessages(context.Background(), convId)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[2].Content != "streamed reply" {
		t.Fatalf("unexpected persisted messages: %+v", msgs)
	}
}
