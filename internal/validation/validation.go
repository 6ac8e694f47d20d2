// Package validation provides input-shape validation for the HTTP API
// surface. It has no dependencies on other internal packages besides
// apperr, to avoid import cycles with the handlers that call it.
package validation

import (
	"os"
	"path/filepath"
	"strings"

	"ragcore/internal/apperr"
)

// PathSegment checks that id is safe for use as a single filesystem or URL
// path segment: non-empty, no separators, no traversal.
func PathSegment(field, id string) (string, error) {
	if id == "" {
		return "", apperr.New(apperr.ValidationFailed, field+" is required").WithDetails(map[string]string{field: "required"})
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", apperr.New(apperr.ValidationFailed, field+" is invalid").WithDetails(map[string]string{field: "must be a single path segment"})
	}
	clean := filepath.Clean(id)
	if clean != id || strings.HasPrefix(clean, "..") || strings.Contains(clean, string(os.PathSeparator)+"..") || filepath.IsAbs(clean) {
		return "", apperr.New(apperr.ValidationFailed, field+" is invalid").WithDetails(map[string]string{field: "must not traverse paths"})
	}
	return clean, nil
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"google":    true,
	"ollama":    true,
}

// ChatRequest mirrors the §6 chat request body shape.
type ChatRequest struct {
	KnowledgeId             *string
	Message                 string
	Temperature             float64
	StripMarkdown           bool
	UseExtendedInstructions bool
	ConversationId          *string
	Provider                string
	OllamaModel             *string
	UseAgent                bool
}

// NormalizedTemperature returns the server-default sentinel (nil) when the
// request carries -1, per §6 ("temperature: number (-1 ⇒ use server
// default)") — the boundary coerces rather than rejects.
func (r ChatRequest) NormalizedTemperature() *float64 {
	if r.Temperature == -1 {
		return nil
	}
	t := r.Temperature
	return &t
}

// Validate checks the chat request body's field-level constraints, used by
// the HTTP handler before constructing a chat.Request.
func Validate(r ChatRequest) error {
	details := map[string]string{}
	if strings.TrimSpace(r.Message) == "" {
		details["message"] = "required"
	}
	if !validProviders[strings.ToLower(r.Provider)] {
		details["provider"] = "must be one of openai, anthropic, google, ollama"
	}
	if r.Temperature != -1 && (r.Temperature < 0 || r.Temperature > 2) {
		details["temperature"] = "must be -1 or between 0 and 2"
	}
	if len(details) > 0 {
		return apperr.New(apperr.ValidationFailed, "invalid chat request").WithDetails(details)
	}
	return nil
}
