package anthropic

import (
	"encoding/json"
	"testing"

	"ragcore/internal/llm"
)

func TestAdaptMessagesSeparatesSystemPrompt(t *testing.T) {
	sys, msgs, err := adaptMessages([]llm.Message{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("adaptMessages: %v", err)
	}
	if len(sys) != 1 || sys[0].Text != "be concise" {
		t.Fatalf("expected system prompt to be extracted, got %+v", sys)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one converted message, got %d", len(msgs))
	}
}

func TestAdaptMessagesRejectsUnknownRole(t *testing.T) {
	if _, _, err := adaptMessages([]llm.Message{{Role: "narrator", Content: "x"}}); err == nil {
		t.Fatalf("expected an error for an unsupported role")
	}
}

func TestToolBufferAccumulatesPartialJSON(t *testing.T) {
	tb := &toolBuffer{id: "call-1", name: "search"}
	tb.appendInitial(json.RawMessage(""))
	tb.appendPartial(`{"qu`)
	tb.appendPartial(`ery":"b"}`)

	call := tb.toToolCall()
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(call.Args, &args); err != nil {
		t.Fatalf("unmarshal accumulated args: %v", err)
	}
	if args.Query != "b" {
		t.Fatalf("expected query b, got %q", args.Query)
	}
}
