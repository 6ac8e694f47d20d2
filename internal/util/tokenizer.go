package util

import (
	"strings"
	"unicode"
)

// CountTokens provides a rough token count suitable for estimating LLM usage.
// Punctuation is counted separately to improve accuracy over simple space-based splitting.
func CountTokens(s string) int {
	return len(Tokenize(s))
}

// Tokenize splits s into word and punctuation tokens using the same
// boundary rules as CountTokens. It is deterministic and stable across
// runs (no external tokenizer model, no locale-dependent behavior), which
// is what lets the chunker re-include an exact number of trailing tokens
// as overlap when it starts the next window.
func Tokenize(s string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}
