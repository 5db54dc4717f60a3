package vigil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const compressPrompt = `You are a conversation summarizer. Rewrite the conversation transcript below as a dense digest in third person past tense. Preserve concrete facts: file names, URLs, commands, decisions, and outcomes. Drop pleasantries and repetition. Output only the summary text.`

// Agent runs the LLM conversation loop. It owns no per-chat state; the
// Scheduler passes in the message history and persists whatever comes back.
type Agent struct {
	provider Provider
	logger   *slog.Logger
	tracer   Tracer
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithAgentLogger sets the logger. Defaults to a no-op logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAgentTracer sets the tracer. Defaults to a no-op tracer.
func WithAgentTracer(t Tracer) AgentOption {
	return func(a *Agent) {
		if t != nil {
			a.tracer = t
		}
	}
}

// NewAgent creates an Agent over a chat provider.
func NewAgent(provider Provider, opts ...AgentOption) *Agent {
	a := &Agent{
		provider: provider,
		logger:   nopLogger(),
		tracer:   NopTracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the conversation loop until the orchestrator reports no
// follow-up messages. The system prompt is prepended as exactly one system
// message on every completion call; it is never appended to the returned
// history. Returns the final LLM response (with usage counters) and the
// full updated message history.
func (a *Agent) Run(ctx context.Context, systemPrompt string, messages []ChatMessage, orch Orchestrator) (ChatResponse, []ChatMessage, error) {
	ctx, span := a.tracer.Start(ctx, "agent.run", IntAttr("messages", len(messages)))
	defer span.End()

	system := SystemMessage(systemPrompt)
	tools := orch.Tools()

	for {
		req := ChatRequest{
			Messages: append([]ChatMessage{system}, messages...),
			Tools:    tools,
		}
		resp, err := a.provider.Chat(ctx, req)
		if err != nil {
			span.RecordError(err)
			return ChatResponse{}, messages, fmt.Errorf("agent: completion failed: %w", err)
		}
		a.logger.Debug("llm response",
			slog.String("finish_reason", resp.FinishReason),
			slog.Int("tool_calls", len(resp.ToolCalls)),
			slog.Int("total_tokens", resp.Usage.TotalTokens))

		assistant := ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)

		reply := orch.Process(ctx, assistant, resp.FinishReason)
		if len(reply) == 0 {
			span.SetAttr(IntAttr("final_tokens", resp.Usage.TotalTokens))
			return resp, messages, nil
		}
		messages = append(messages, reply...)
	}
}

// Compress produces a dense digest of a message history for use as the
// next session's previous-summary. Messages without text content (tool
// call shells, empty tool results) are skipped. An empty transcript
// returns "" without an LLM call.
func (a *Agent) Compress(ctx context.Context, messages []ChatMessage) (string, error) {
	var parts []string
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", strings.ToUpper(m.Role), m.Content))
	}
	if len(parts) == 0 {
		return "", nil
	}

	ctx, span := a.tracer.Start(ctx, "agent.compress", IntAttr("messages", len(messages)))
	defer span.End()

	temperature := 0.3
	req := ChatRequest{
		Messages: []ChatMessage{
			SystemMessage(compressPrompt),
			UserMessage(strings.Join(parts, "\n\n")),
		},
		GenerationParams: &GenerationParams{Temperature: &temperature},
	}
	resp, err := a.provider.Chat(ctx, req)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("agent: compress failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
