package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestServeStdioHandlesOneRequestPerLine(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n")
	var out bytes.Buffer

	if err := s.ServeStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one response line, got %d: %q", len(lines), out.String())
	}

	var resp map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["jsonrpc"] != "2.0" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestServeStdioReturnsParseErrorForMalformedLine(t *testing.T) {
	s := newTestServer(t)
	in := strings.NewReader("not json\n")
	var out bytes.Buffer

	if err := s.ServeStdio(context.Background(), in, &out); err != nil {
		t.Fatalf("ServeStdio: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	errBody, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error envelope, got %+v", resp)
	}
	if int(errBody["code"].(float64)) != codeParseError {
		t.Fatalf("expected parse error code, got %+v", errBody)
	}
}
