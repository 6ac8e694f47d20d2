// Package anthropic implements the Anthropic provider family.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

const defaultMaxTokens int64 = 4096

type Client struct {
	sdk   anthropic.Client
	model string
}

func New(apiKey, model string) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	return &Client{sdk: anthropic.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) SupportsTools(context.Context) bool { return true }

func (c *Client) Complete(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema) (llm.Message, llm.Usage, error) {
	sys, msgs, err := adaptMessages(history)
	if err != nil {
		return llm.Message{}, llm.Usage{}, err
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    msgs,
		System:      sys,
		Tools:       adaptTools(tools),
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(temperature),
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Complete", c.model, len(tools), len(history))
	defer span.End()
	llm.LogRedactedPrompt(ctx, history)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		llm.RecordSpanError(span, err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_complete_error")
		return llm.Message{}, llm.Usage{}, err
	}

	out := messageFromResponse(resp)
	usage := llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	return out, usage, nil
}

func (c *Client) CompleteStreaming(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema, h llm.StreamHandler) error {
	sys, msgs, err := adaptMessages(history)
	if err != nil {
		return err
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		Messages:    msgs,
		System:      sys,
		Tools:       adaptTools(tools),
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(temperature),
	}

	ctx, span := llm.StartRequestSpan(ctx, "Anthropic CompleteStreaming", c.model, len(tools), len(history))
	defer span.End()
	llm.LogRedactedPrompt(ctx, history)

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	toolBuffers := map[int64]*toolBuffer{}
	var usage anthropic.MessageDeltaUsage

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				id := strings.TrimSpace(block.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", len(toolBuffers)+1)
				}
				tb := &toolBuffer{id: id, name: block.Name}
				tb.appendInitial(block.Input)
				toolBuffers[ev.Index] = tb
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					if err := h(llm.StreamDelta{Text: delta.Text}); err != nil {
						return err
					}
				}
			case anthropic.InputJSONDelta:
				if tb := toolBuffers[ev.Index]; tb != nil {
					tb.appendPartial(delta.PartialJSON)
				}
			}
		case anthropic.MessageDeltaEvent:
			usage = ev.Usage
		}
	}
	if err := stream.Err(); err != nil {
		llm.RecordSpanError(span, err)
		return err
	}

	for _, tb := range toolBuffers {
		call := tb.toToolCall()
		if err := h(llm.StreamDelta{ToolCall: &call}); err != nil {
			return err
		}
	}

	return h(llm.StreamDelta{Done: true, Usage: llm.Usage{
		PromptTokens:     int(usage.InputTokens),
		CompletionTokens: int(usage.OutputTokens),
	}})
}

func adaptTools(tools []llm.ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.ValueOf[constant.Object]()}
		extras := map[string]any{}
		for k, v := range t.Parameters {
			extras[k] = v
		}
		if props, ok := extras["properties"]; ok {
			schema.Properties = props
			delete(extras, "properties")
		}
		if req, ok := extras["required"].([]string); ok {
			schema.Required = req
			delete(extras, "required")
		}
		delete(extras, "type")
		param := anthropic.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))
	toolResultCount := 0

	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case "user":
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for i, tc := range m.ToolCalls {
				id := strings.TrimSpace(tc.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", i+1)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, decodeArgs(tc.Args), tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			id := strings.TrimSpace(m.ToolID)
			if id == "" {
				toolResultCount++
				id = fmt.Sprintf("tool-result-%d", toolResultCount)
			}
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, m.Content, false)))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported role %q", m.Role)
		}
	}
	return system, out, nil
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	return map[string]any{}
}

func messageFromResponse(resp *anthropic.Message) llm.Message {
	if resp == nil {
		return llm.Message{}
	}
	var sb strings.Builder
	var calls []llm.ToolCall
	for i, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			id := strings.TrimSpace(v.ID)
			if id == "" {
				id = fmt.Sprintf("call-%d", i+1)
			}
			args := v.Input
			if len(args) == 0 {
				if b, err := json.Marshal(v.Input); err == nil {
					args = b
				}
			}
			calls = append(calls, llm.ToolCall{ID: id, Name: v.Name, Args: args})
		}
	}
	return llm.Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}
}

// toolBuffer accumulates a streaming tool call's partial JSON input across
// ContentBlockDeltaEvent InputJSONDelta chunks.
type toolBuffer struct {
	id, name string
	raw      strings.Builder
}

func (tb *toolBuffer) appendInitial(raw json.RawMessage) {
	if len(raw) > 0 {
		tb.raw.Write(raw)
	}
}

func (tb *toolBuffer) appendPartial(partial string) {
	tb.raw.WriteString(partial)
}

func (tb *toolBuffer) toToolCall() llm.ToolCall {
	raw := strings.TrimSpace(tb.raw.String())
	if raw == "" {
		raw = "{}"
	}
	return llm.ToolCall{ID: tb.id, Name: tb.name, Args: json.RawMessage(raw)}
}
