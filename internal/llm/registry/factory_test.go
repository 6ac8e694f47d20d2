package registry

import (
	"testing"

	"ragcore/internal/config"
)

func TestGetCachesHandleByProviderAndModel(t *testing.T) {
	f := New(config.Config{OpenAIAPIKey: "test"})

	a, err := f.Get("openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := f.Get("openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Get (second): %v", err)
	}
	if a != b {
		t.Fatalf("expected the same cached handle for repeat Get calls")
	}

	c, err := f.Get("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("Get (different model): %v", err)
	}
	if c == a {
		t.Fatalf("expected a distinct handle for a different model")
	}
}

func TestGetUnsupportedProviderFails(t *testing.T) {
	f := New(config.Config{})
	if _, err := f.Get("cohere", "command-r"); err == nil {
		t.Fatalf("expected an error for an unsupported provider")
	}
}
