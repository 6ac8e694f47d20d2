// Package google implements the Google Gemini provider family.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"ragcore/internal/llm"
	"ragcore/internal/observability"
)

type Client struct {
	client *genai.Client
	model  string
}

func New(apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: strings.TrimSpace(apiKey)})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return "google" }

func (c *Client) SupportsTools(context.Context) bool { return true }

func (c *Client) Complete(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema) (llm.Message, llm.Usage, error) {
	contents, err := toContents(history)
	if err != nil {
		return llm.Message{}, llm.Usage{}, err
	}
	toolDecls, toolCfg, err := adaptTools(tools)
	if err != nil {
		return llm.Message{}, llm.Usage{}, err
	}

	ctx, span := llm.StartRequestSpan(ctx, "Google Complete", c.model, len(tools), len(history))
	defer span.End()
	llm.LogRedactedPrompt(ctx, history)
	log := observability.LoggerWithTrace(ctx)

	temp := float32(temperature)
	cfg := &genai.GenerateContentConfig{Tools: toolDecls, ToolConfig: toolCfg, Temperature: &temp}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	dur := time.Since(start)
	if err != nil {
		llm.RecordSpanError(span, err)
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("google_complete_error")
		return llm.Message{}, llm.Usage{}, err
	}

	msg, err := messageFromResponse(resp)
	if err != nil {
		llm.RecordSpanError(span, err)
		return llm.Message{}, llm.Usage{}, err
	}
	usage := llm.Usage{}
	if resp.UsageMetadata != nil {
		usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return msg, usage, nil
}

// CompleteStreaming has no native per-token stream in the genai client used
// here; it runs one Complete call and synthesizes a single final delta,
// per §4.G's fallback requirement for providers without native streaming.
func (c *Client) CompleteStreaming(ctx context.Context, history []llm.Message, temperature float64, tools []llm.ToolSchema, h llm.StreamHandler) error {
	msg, usage, err := c.Complete(ctx, history, temperature, tools)
	if err != nil {
		return err
	}
	if msg.Content != "" {
		if err := h(llm.StreamDelta{Text: msg.Content}); err != nil {
			return err
		}
	}
	for _, tc := range msg.ToolCalls {
		call := tc
		if err := h(llm.StreamDelta{ToolCall: &call}); err != nil {
			return err
		}
	}
	return h(llm.StreamDelta{Done: true, Usage: usage})
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	toolNamesByID := map[string]string{}
	var lastFuncName string
	contents := make([]*genai.Content, 0, len(msgs))

	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "", "user", "system":
			role = genai.RoleUser
		case "assistant":
			role = genai.RoleModel
			for _, tc := range m.ToolCalls {
				if tc.ID != "" && tc.Name != "" {
					toolNamesByID[tc.ID] = tc.Name
				}
				if tc.Name != "" {
					lastFuncName = tc.Name
				}
			}
		case "tool":
			name := toolNamesByID[m.ToolID]
			if name == "" {
				name = lastFuncName
				if name == "" {
					name = "tool_response"
				}
			}
			respMap := map[string]any{}
			if trimmed := strings.TrimSpace(m.Content); trimmed != "" {
				if err := json.Unmarshal([]byte(trimmed), &respMap); err != nil {
					respMap = map[string]any{"output": m.Content}
				}
			}
			part := genai.NewPartFromFunctionResponse(name, respMap)
			part.FunctionResponse.ID = m.ToolID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
			continue
		default:
			return nil, fmt.Errorf("google: unsupported role %q", m.Role)
		}

		text := m.Content
		if role == genai.RoleUser && strings.ToLower(strings.TrimSpace(m.Role)) == "system" {
			text = "[system] " + text
		}
		parts := []*genai.Part{}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, &genai.Part{Text: text})
		}
		if role == genai.RoleModel {
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if len(tc.Args) > 0 {
					_ = json.Unmarshal(tc.Args, &args)
				}
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, args))
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func messageFromResponse(resp *genai.GenerateContentResponse) (llm.Message, error) {
	if resp == nil {
		return llm.Message{}, fmt.Errorf("google: nil response")
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Message{}, fmt.Errorf("google: request blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return llm.Message{}, fmt.Errorf("google: no candidates in response")
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety:
		return llm.Message{}, fmt.Errorf("google: response blocked by safety filters")
	case genai.FinishReasonRecitation:
		return llm.Message{}, fmt.Errorf("google: response blocked due to recitation")
	case genai.FinishReasonMalformedFunctionCall:
		return llm.Message{}, fmt.Errorf("google: malformed function call generated by model")
	}
	if candidate.Content == nil {
		return llm.Message{Role: "assistant"}, nil
	}

	var sb strings.Builder
	var calls []llm.ToolCall
	callIdx := 0
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			callIdx++
			id := part.FunctionCall.ID
			if strings.TrimSpace(id) == "" {
				id = "call-" + strconv.Itoa(callIdx)
			}
			calls = append(calls, llm.ToolCall{ID: id, Name: part.FunctionCall.Name, Args: args})
		}
	}
	return llm.Message{Role: "assistant", Content: sb.String(), ToolCalls: calls}, nil
}

func adaptTools(schemas []llm.ToolSchema) ([]*genai.Tool, *genai.ToolConfig, error) {
	if len(schemas) == 0 {
		return nil, nil, nil
	}
	fd := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		if strings.TrimSpace(s.Name) == "" {
			return nil, nil, fmt.Errorf("google: tool name required")
		}
		fd = append(fd, &genai.FunctionDeclaration{
			Name:                 s.Name,
			Description:          s.Description,
			ParametersJsonSchema: s.Parameters,
		})
	}
	cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}}
	return []*genai.Tool{{FunctionDeclarations: fd}}, cfg, nil
}
