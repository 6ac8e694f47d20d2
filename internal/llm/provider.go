// Package llm defines the portable chat message model and the Provider
// capability surface that every backend (OpenAI-compatible, Anthropic,
// Google, Ollama) implements, per component G of the chat pipeline.
package llm

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ragcore/internal/observability"
)

// Message is one turn of conversation history, provider-agnostic.
type Message struct {
	Role      string // "system" | "user" | "assistant" | "tool"
	Content   string
	ToolCalls []ToolCall
	ToolID    string // set on Role=="tool": which call this answers
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolSchema describes one callable tool, advertised to providers that
// SupportsTools.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// StreamDelta is one incremental piece of a streaming completion.
type StreamDelta struct {
	Text     string
	ToolCall *ToolCall // set once a tool call has fully accumulated
	Done     bool
	Usage    Usage // populated alongside the final Done delta, if known
}

// StreamHandler receives each delta of a streaming completion in order.
// Returning an error aborts the stream.
type StreamHandler func(StreamDelta) error

// Provider is the capability surface every chat backend implements (§4.G).
// Implementations are selected at startup by configuration and cached per
// provider+model; see Factory.
type Provider interface {
	// Complete runs one non-streaming turn.
	Complete(ctx context.Context, history []Message, temperature float64, tools []ToolSchema) (Message, Usage, error)
	// CompleteStreaming runs one turn, delivering deltas to h as they
	// arrive. Providers without native streaming synthesize one final
	// delta from a single-shot completion.
	CompleteStreaming(ctx context.Context, history []Message, temperature float64, tools []ToolSchema, h StreamHandler) error
	// SupportsTools reports whether this provider handle can be given
	// ToolSchema definitions and is expected to honor them.
	SupportsTools(ctx context.Context) bool
	// Name identifies the provider family, used in usage-metric rows.
	Name() string
}

// StartRequestSpan opens a span for one provider call, tagging it with the
// model and the shape of the request so local tracing can distinguish
// turns without a network exporter attached.
func StartRequestSpan(ctx context.Context, spanName, model string, toolCount, messageCount int) (context.Context, trace.Span) {
	ctx, span := observability.Tracer("llm").Start(ctx, spanName)
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", toolCount),
		attribute.Int("llm.messages", messageCount),
	)
	return ctx, span
}

// RecordSpanError marks span as failed and sets its status, used uniformly
// by every provider client so a failed completion always shows up the same
// way in local traces.
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// LogRedactedPrompt logs the outgoing history at debug level with any
// sensitive-looking field values redacted, for local prompt debugging
// without leaking API keys or tokens embedded in tool arguments.
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	log := observability.LoggerWithTrace(ctx)
	if !log.Debug().Enabled() {
		return
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	log.Debug().RawJSON("history", observability.RedactJSON(b)).Msg("llm_request")
}
