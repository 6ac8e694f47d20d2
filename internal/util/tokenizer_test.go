package util

import "testing"

func TestCountTokensIsDeterministic(t *testing.T) {
	s := "Hello, world! This is a test."
	a := CountTokens(s)
	b := CountTokens(s)
	if a != b {
		t.Fatalf("expected stable count, got %d then %d", a, b)
	}
	if a == 0 {
		t.Fatal("expected a non-zero token count")
	}
}

func TestTokenizeSplitsPunctuationSeparately(t *testing.T) {
	tokens := Tokenize("hi, there.")
	want := []string{"hi", ",", "there", "."}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("got %v, want %v", tokens, want)
		}
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	if tokens := Tokenize(""); len(tokens) != 0 {
		t.Fatalf("expected no tokens, got %v", tokens)
	}
}
