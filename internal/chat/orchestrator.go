// Package chat implements the §4.I turn contract: Ask/AskStreaming thread a
// single user message through system-prompt assembly, optional retrieval,
// provider dispatch (with an optional tool-calling agent loop), persistence,
// and usage recording.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ragcore/internal/agent"
	"ragcore/internal/analytics"
	"ragcore/internal/apperr"
	"ragcore/internal/llm"
	"ragcore/internal/metadatastore"
	"ragcore/internal/observability"
	"ragcore/internal/rag/retrieval"
	"ragcore/internal/util"

	"github.com/rs/zerolog"
)

const (
	settingSystemPrompt           = "SystemPrompt"
	settingSystemPromptWithCoding = "SystemPromptWithCoding"
	settingChatMaxTurns           = "ChatMaxTurns"
	settingAgentMaxIterations     = "AgentMaxIterations"
	settingTemperature            = "Temperature"
	settingRetrievalK             = "Retrieval.K"
	settingRetrievalMinScore      = "Retrieval.MinScore"
)

// Request is the §4.I turn contract's input.
type Request struct {
	ConversationId          *string
	KnowledgeId             *string
	Message                 string
	Temperature             *float64
	StripMarkdown           bool
	UseExtendedInstructions bool
	Provider                string
	Model                   string
	UseAgent                bool
}

// Response is the §4.I turn contract's output.
type Response struct {
	ConversationId string
	Reply          string
}

// ProviderFactory resolves a provider+model handle. *registry.Factory
// satisfies this; tests substitute a fake to avoid real network calls.
type ProviderFactory interface {
	Get(provider, model string) (llm.Provider, error)
}

// Orchestrator wires the conversation store, the provider factory, the
// retrieval searcher, the tool registry and the analytics writer into one
// turn contract. Every dependency is a capability interface or a concrete
// read/write view already owned elsewhere; Orchestrator invents no storage
// of its own.
type Orchestrator struct {
	Store     *metadatastore.Store
	Providers ProviderFactory
	Searcher  *retrieval.Searcher
	Tools     *agent.Registry
	Analytics *analytics.Reader
	Delimiter string
}

// Ask runs one non-streaming turn per the §4.I algorithm.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	log := observability.LoggerWithTrace(ctx)

	conv, err := o.loadOrCreateConversation(ctx, req)
	if err != nil {
		return Response{}, err
	}

	unlock := o.Store.ConversationLock(conv.ConversationId)
	defer unlock()

	temperature := conv.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	model := req.Model
	if model == "" {
		model = conv.ModelName
	}

	systemPrompt, err := o.buildSystemPrompt(ctx, conv.ConversationId, req.KnowledgeId, req.Message, req.UseExtendedInstructions, log)
	if err != nil {
		return Response{}, err
	}
	if err := o.Store.AttachSystemMarker(ctx, conv.ConversationId, systemPrompt); err != nil {
		return Response{}, apperr.Wrap(apperr.Internal, "attach system marker", err)
	}

	userTokens := util.CountTokens(req.Message)
	if _, err := o.Store.AppendMessage(ctx, conv.ConversationId, metadatastore.RoleUser, req.Message, &userTokens); err != nil {
		return Response{}, apperr.Wrap(apperr.Internal, "append user message", err)
	}

	maxTurns, err := o.intSetting(ctx, settingChatMaxTurns, 10)
	if err != nil {
		return Response{}, err
	}
	history, err := o.Store.LoadHistory(ctx, conv.ConversationId, maxTurns)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.Internal, "load conversation history", err)
	}

	provider, err := o.Providers.Get(req.Provider, model)
	if err != nil {
		return Response{}, apperr.Wrap(apperr.ProviderUnavailable, "resolve provider", err)
	}

	var reply llm.Message
	var usage llm.Usage
	if req.UseAgent && provider.SupportsTools(ctx) {
		reply, usage, err = o.runAgentLoop(ctx, provider, toLLMMessages(history), temperature)
	} else {
		reply, usage, err = provider.Complete(ctx, toLLMMessages(history), temperature, nil)
	}

	responseTimeMs := time.Since(start).Milliseconds()
	if err != nil {
		kind := apperr.KindOf(err).String()
		o.recordUsage(ctx, log, conv.ConversationId, provider.Name(), model, usage.PromptTokens, usage.CompletionTokens, responseTimeMs, false, &kind)
		return Response{}, apperr.Wrap(apperr.ProviderFailed, "provider completion failed", err)
	}

	replyText := reply.Content
	if req.StripMarkdown {
		replyText = stripMarkdown(replyText)
	}

	completionTokens := usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = util.CountTokens(replyText)
	}
	if _, err := o.Store.AppendMessage(ctx, conv.ConversationId, metadatastore.RoleAssistant, replyText, &completionTokens); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ConversationId).Msg("failed to persist assistant reply")
	}

	o.recordUsage(ctx, log, conv.ConversationId, provider.Name(), model, usage.PromptTokens, completionTokens, responseTimeMs, true, nil)

	return Response{ConversationId: conv.ConversationId, Reply: replyText}, nil
}

// AskStreaming runs the same pipeline as Ask, but step 5 delivers deltas to
// onDelta as they arrive rather than returning a single reply. Token usage
// for the recorded metric comes from the provider's final delta if present,
// otherwise from the §4.C tokenizer applied to the accumulated text.
//
// The tool-calling agent loop is not incremental: when useAgent is honored,
// the whole loop runs to completion first and the final answer is delivered
// as one delta, since intermediate tool-call turns are not meant for direct
// display.
func (o *Orchestrator) AskStreaming(ctx context.Context, req Request, onDelta llm.StreamHandler) (string, error) {
	start := time.Now()
	log := observability.LoggerWithTrace(ctx)

	conv, err := o.loadOrCreateConversation(ctx, req)
	if err != nil {
		return "", err
	}

	unlock := o.Store.ConversationLock(conv.ConversationId)
	defer unlock()

	temperature := conv.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model := req.Model
	if model == "" {
		model = conv.ModelName
	}

	systemPrompt, err := o.buildSystemPrompt(ctx, conv.ConversationId, req.KnowledgeId, req.Message, req.UseExtendedInstructions, log)
	if err != nil {
		return "", err
	}
	if err := o.Store.AttachSystemMarker(ctx, conv.ConversationId, systemPrompt); err != nil {
		return "", apperr.Wrap(apperr.Internal, "attach system marker", err)
	}

	userTokens := util.CountTokens(req.Message)
	if _, err := o.Store.AppendMessage(ctx, conv.ConversationId, metadatastore.RoleUser, req.Message, &userTokens); err != nil {
		return "", apperr.Wrap(apperr.Internal, "append user message", err)
	}

	maxTurns, err := o.intSetting(ctx, settingChatMaxTurns, 10)
	if err != nil {
		return "", err
	}
	history, err := o.Store.LoadHistory(ctx, conv.ConversationId, maxTurns)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "load conversation history", err)
	}

	provider, err := o.Providers.Get(req.Provider, model)
	if err != nil {
		return "", apperr.Wrap(apperr.ProviderUnavailable, "resolve provider", err)
	}

	var accumulated string
	var usage llm.Usage
	var streamErr error

	if req.UseAgent && provider.SupportsTools(ctx) {
		var reply llm.Message
		reply, usage, streamErr = o.runAgentLoop(ctx, provider, toLLMMessages(history), temperature)
		if streamErr == nil {
			accumulated = reply.Content
			if req.StripMarkdown {
				accumulated = stripMarkdown(accumulated)
			}
			streamErr = onDelta(llm.StreamDelta{Text: accumulated, Done: true, Usage: usage})
		}
	} else {
		streamErr = provider.CompleteStreaming(ctx, toLLMMessages(history), temperature, nil, func(d llm.StreamDelta) error {
			accumulated += d.Text
			if d.Done {
				usage = d.Usage
			}
			return onDelta(d)
		})
	}

	responseTimeMs := time.Since(start).Milliseconds()
	if streamErr != nil {
		kind := apperr.ProviderFailed.String()
		o.recordUsage(ctx, log, conv.ConversationId, provider.Name(), model, usage.PromptTokens, usage.CompletionTokens, responseTimeMs, false, &kind)
		return conv.ConversationId, apperr.Wrap(apperr.ProviderFailed, "provider streaming completion failed", streamErr)
	}

	completionTokens := usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = util.CountTokens(accumulated)
	}
	if _, err := o.Store.AppendMessage(ctx, conv.ConversationId, metadatastore.RoleAssistant, accumulated, &completionTokens); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ConversationId).Msg("failed to persist streamed assistant reply")
	}

	o.recordUsage(ctx, log, conv.ConversationId, provider.Name(), model, usage.PromptTokens, completionTokens, responseTimeMs, true, nil)

	return conv.ConversationId, nil
}

func (o *Orchestrator) loadOrCreateConversation(ctx context.Context, req Request) (metadatastore.Conversation, error) {
	if req.ConversationId == nil || *req.ConversationId == "" {
		temperature, err := o.floatSetting(ctx, settingTemperature, 0.7)
		if err != nil {
			return metadatastore.Conversation{}, err
		}
		if req.Temperature != nil {
			temperature = *req.Temperature
		}
		model := req.Model
		conv, err := o.Store.CreateConversation(ctx, req.Provider, model, req.KnowledgeId, temperature)
		if err != nil {
			return metadatastore.Conversation{}, apperr.Wrap(apperr.Internal, "create conversation", err)
		}
		return conv, nil
	}
	conv, err := o.Store.GetConversation(ctx, *req.ConversationId)
	if err != nil {
		return metadatastore.Conversation{}, apperr.Wrap(apperr.NotFound, "conversation not found", err)
	}
	return conv, nil
}

// buildSystemPrompt implements §4.I step 2: choose the base or extended
// system prompt setting, append the retrieval context block when a
// knowledgeId is set (step 3), falling back to an empty, warned-about block
// on retrieval failure per the documented failure semantics.
func (o *Orchestrator) buildSystemPrompt(ctx context.Context, conversationId string, knowledgeId *string, message string, extended bool, log *zerolog.Logger) (string, error) {
	settingName := settingSystemPrompt
	if extended {
		settingName = settingSystemPromptWithCoding
	}
	base, err := o.Store.GetSettingValue(ctx, settingName)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read system prompt setting", err)
	}

	if knowledgeId == nil || *knowledgeId == "" {
		return base, nil
	}

	block, err := o.retrieveContext(ctx, *knowledgeId, message)
	if err != nil {
		log.Warn().Err(err).Str("collection_id", *knowledgeId).Msg("retrieval failed, continuing with empty context")
		return base + "\n\nNo relevant context was found in the knowledge base.", nil
	}
	if block == "" {
		return base + "\n\nNo relevant context was found in the knowledge base.", nil
	}
	return base + "\n\nRetrieved context:\n" + block, nil
}

func (o *Orchestrator) retrieveContext(ctx context.Context, collectionId, query string) (string, error) {
	k, err := o.intSetting(ctx, settingRetrievalK, 8)
	if err != nil {
		return "", err
	}
	minScore, err := o.floatSetting(ctx, settingRetrievalMinScore, 0.6)
	if err != nil {
		return "", err
	}
	hits, err := o.Searcher.Search(ctx, collectionId, query, k, minScore)
	if err != nil {
		return "", err
	}
	return retrieval.FormatContextBlock(hits, o.Delimiter), nil
}

// runAgentLoop implements §4.I step 5's tool-calling loop, capped at
// AgentMaxIterations.
func (o *Orchestrator) runAgentLoop(ctx context.Context, provider llm.Provider, history []llm.Message, temperature float64) (llm.Message, llm.Usage, error) {
	maxIterations, err := o.intSetting(ctx, settingAgentMaxIterations, 5)
	if err != nil {
		return llm.Message{}, llm.Usage{}, err
	}

	tools := toToolSchemas(o.Tools.Specs())
	msgs := append([]llm.Message{}, history...)
	var total llm.Usage

	for i := 0; i < maxIterations; i++ {
		reply, usage, err := provider.Complete(ctx, msgs, temperature, tools)
		total.PromptTokens += usage.PromptTokens
		total.CompletionTokens += usage.CompletionTokens
		if err != nil {
			return llm.Message{}, total, err
		}
		if len(reply.ToolCalls) == 0 {
			return reply, total, nil
		}

		msgs = append(msgs, reply)
		for _, call := range reply.ToolCalls {
			result, callErr := o.Tools.Call(ctx, call.Name, call.Args)
			content := toolResultText(result, callErr)
			msgs = append(msgs, llm.Message{Role: "tool", Content: content, ToolID: call.ID})
		}
	}

	return llm.Message{}, total, apperr.New(apperr.AgentIterationCap, fmt.Sprintf("agent loop exceeded %d iterations", maxIterations))
}

func toolResultText(result any, err error) string {
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	b, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Sprintf(`{"error":%q}`, marshalErr.Error())
	}
	return string(b)
}

func (o *Orchestrator) recordUsage(ctx context.Context, log *zerolog.Logger, conversationId, provider, model string, promptTokens, completionTokens int, responseTimeMs int64, success bool, errorKind *string) {
	convId := conversationId
	metric := metadatastore.UsageMetric{
		ConversationId:   &convId,
		Provider:         provider,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		ResponseTimeMs:   responseTimeMs,
		Success:          success,
		ErrorKind:        errorKind,
	}
	if err := o.Store.RecordUsage(ctx, metric); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationId).Msg("failed to record usage metric")
		return
	}
	if o.Analytics != nil {
		o.Analytics.Invalidate()
	}
}

func (o *Orchestrator) intSetting(ctx context.Context, name string, fallback int) (int, error) {
	raw, err := o.Store.GetSettingValue(ctx, name)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, fmt.Sprintf("read setting %q", name), err)
	}
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

func (o *Orchestrator) floatSetting(ctx context.Context, name string, fallback float64) (float64, error) {
	raw, err := o.Store.GetSettingValue(ctx, name)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, fmt.Sprintf("read setting %q", name), err)
	}
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}

func toLLMMessages(history []metadatastore.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func toToolSchemas(specs []agent.Spec) []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}
