package validation

import "testing"

func TestPathSegmentValidAndInvalid(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"simple", "collection-1", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"slash", "a/b", true},
		{"backslash", `a\b`, true},
		{"traversal", "../escape", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PathSegment("id", tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for input %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.in {
				t.Fatalf("expected %q, got %q", tt.in, got)
			}
		})
	}
}

func TestValidateRejectsEmptyMessage(t *testing.T) {
	err := Validate(ChatRequest{Message: "", Provider: "openai", Temperature: 0.7})
	if err == nil {
		t.Fatalf("expected a validation error for empty message")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	err := Validate(ChatRequest{Message: "hi", Provider: "bogus", Temperature: 0.7})
	if err == nil {
		t.Fatalf("expected a validation error for unknown provider")
	}
}

func TestValidateAcceptsSentinelTemperature(t *testing.T) {
	err := Validate(ChatRequest{Message: "hi", Provider: "openai", Temperature: -1})
	if err != nil {
		t.Fatalf("expected -1 temperature to be valid, got %v", err)
	}
}

func TestNormalizedTemperatureCoercesSentinel(t *testing.T) {
	r := ChatRequest{Temperature: -1}
	if got := r.NormalizedTemperature(); got != nil {
		t.Fatalf("expected nil for sentinel temperature, got %v", *got)
	}

	r2 := ChatRequest{Temperature: 0.5}
	got := r2.NormalizedTemperature()
	if got == nil || *got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}
