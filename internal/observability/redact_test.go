package observability

import (
	"encoding/json"
	"testing"
)

func TestRedactJSONMasksSensitiveKeys(t *testing.T) {
	raw := json.RawMessage(`{"model":"gpt-4","api_key":"sk-123","nested":{"Authorization":"Bearer xyz"}}`)

	got := RedactJSON(raw)

	var decoded map[string]any
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("decode redacted payload: %v", err)
	}
	if decoded["model"] != "gpt-4" {
		t.Fatalf("expected non-sensitive key to survive, got %+v", decoded)
	}
	if decoded["api_key"] != "[REDACTED]" {
		t.Fatalf("expected api_key to be redacted, got %+v", decoded)
	}
	nested, ok := decoded["nested"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested object, got %+v", decoded["nested"])
	}
	if nested["Authorization"] != "[REDACTED]" {
		t.Fatalf("expected nested Authorization to be redacted, got %+v", nested)
	}
}

func TestRedactJSONRedactsWithinArrays(t *testing.T) {
	raw := json.RawMessage(`[{"token":"abc"},{"note":"ok"}]`)

	got := RedactJSON(raw)

	var decoded []map[string]any
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatalf("decode redacted payload: %v", err)
	}
	if decoded[0]["token"] != "[REDACTED]" {
		t.Fatalf("expected token to be redacted, got %+v", decoded[0])
	}
	if decoded[1]["note"] != "ok" {
		t.Fatalf("expected note to survive, got %+v", decoded[1])
	}
}

func TestRedactJSONPassesThroughInvalidPayload(t *testing.T) {
	raw := json.RawMessage(`not json`)
	if got := RedactJSON(raw); string(got) != string(raw) {
		t.Fatalf("expected invalid payload to pass through unchanged, got %q", got)
	}
}

func TestRedactJSONPassesThroughEmptyPayload(t *testing.T) {
	if got := RedactJSON(nil); got != nil {
		t.Fatalf("expected nil payload to pass through, got %q", got)
	}
}
