// Package openai implements the OpenAI-compatible provider family: the
// hosted OpenAI API, and (by pointing BaseURL at a local endpoint) any
// OpenAI-compatible server including Ollama's /v1 surface.
package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

// Client is an OpenAI-compatible provider handle.
type Client struct {
	sdk   sdk.Client
	model string
	name  string // "openai" or "ollama", used for Name() and usage metrics
}

// New builds a provider handle. name is the identifier reported by Name()
// (distinct from model, since Ollama reuses this client against its own
// OpenAI-compatible endpoint). baseURL is empty for the hosted OpenAI API.
func New(name, apiKey, baseURL, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")+"/v1"))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model, name: name}
}

func (c *Client) Name() string { return c.name }

// SupportsTools reports true unconditionally for the hosted OpenAI API; the
// Ollama family overrides this with its own /api/show probe (see the
// ollama package) since not every locally served model handles tool calls.
func (c *Client) SupportsTools(context.Context) bool { return true }

func (c *Client) Complete(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema) (llm.Message, llm.Usage, error) {
	ctx, span := llm.StartRequestSpan(ctx, c.name+" Complete", c.model, len(tools), len(history))
	defer span.End()
	llm.LogRedactedPrompt(ctx, history)

	params := c.buildParams(history, temperature, tools)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		llm.RecordSpanError(span, err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_complete_error")
		return llm.Message{}, llm.Usage{}, err
	}
	if len(comp.Choices) == 0 {
		return llm.Message{}, llm.Usage{}, nil
	}

	usage := llm.Usage{PromptTokens: int(comp.Usage.PromptTokens), CompletionTokens: int(comp.Usage.CompletionTokens)}
	return messageFromChoice(comp.Choices[0].Message), usage, nil
}

func (c *Client) CompleteStreaming(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema, h llm.StreamHandler) error {
	ctx, span := llm.StartRequestSpan(ctx, c.name+" CompleteStreaming", c.model, len(tools), len(history))
	defer span.End()
	llm.LogRedactedPrompt(ctx, history)

	params := c.buildParams(history, temperature, tools)
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	toolCalls := map[int64]*llm.ToolCall{}
	var usage llm.Usage

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			usage = llm.Usage{PromptTokens: int(chunk.Usage.PromptTokens), CompletionTokens: int(chunk.Usage.CompletionTokens)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if err := h(llm.StreamDelta{Text: delta.Content}); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			existing, ok := toolCalls[tc.Index]
			if !ok {
				existing = &llm.ToolCall{ID: tc.ID, Name: tc.Function.Name}
				toolCalls[tc.Index] = existing
			}
			existing.Args = append(existing.Args, json.RawMessage(tc.Function.Arguments)...)
		}
	}
	if err := stream.Err(); err != nil {
		llm.RecordSpanError(span, err)
		return err
	}

	for _, tc := range toolCalls {
		call := *tc
		if err := h(llm.StreamDelta{ToolCall: &call}); err != nil {
			return err
		}
	}
	return h(llm.StreamDelta{Done: true, Usage: usage})
}

func (c *Client) buildParams(history []llm.Message, temperature float64, tools []llm.ToolSchema) sdk.ChatCompletionNewParams {
	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(c.model),
		Messages:    AdaptMessages(history),
		Temperature: sdk.Float(temperature),
	}
	if len(tools) > 0 {
		params.Tools = AdaptSchemas(tools)
	}
	return params
}

func messageFromChoice(msg sdk.ChatCompletionMessage) llm.Message {
	out := llm.Message{Role: "assistant", Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		fn, ok := tc.AsAny().(sdk.ChatCompletionMessageFunctionToolCall)
		if !ok {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   fn.ID,
			Name: fn.Function.Name,
			Args: json.RawMessage(fn.Function.Arguments),
		})
	}
	return out
}
