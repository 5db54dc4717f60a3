package vigil

import (
	"context"
	"strings"
	"testing"
)

// passthroughOrch terminates immediately unless the model asks to
// continue, mirroring the minimal orchestrator contract.
type passthroughOrch struct {
	replies [][]ChatMessage
	seen    []ChatMessage
}

func (o *passthroughOrch) Tools() []ToolDefinition { return nil }

func (o *passthroughOrch) Process(ctx context.Context, msg ChatMessage, finishReason string) []ChatMessage {
	o.seen = append(o.seen, msg)
	if len(o.replies) == 0 {
		return nil
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r
}

func TestAgentRunPrependsSingleSystemMessage(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{textResponse("hi")}}
	agent := NewAgent(p)

	history := []ChatMessage{UserMessage("hello")}
	resp, messages, err := agent.Run(context.Background(), "SYSTEM", history, &passthroughOrch{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("response content = %q", resp.Content)
	}

	req := p.requests[0]
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "SYSTEM" {
		t.Errorf("first request message = %+v", req.Messages[0])
	}
	systemCount := 0
	for _, m := range req.Messages {
		if m.Role == "system" {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("system messages in request = %d, want 1", systemCount)
	}

	// The returned history never contains the system prompt.
	for _, m := range messages {
		if m.Role == "system" {
			t.Error("system message leaked into history")
		}
	}
	if len(messages) != 2 || messages[1].Role != "assistant" || messages[1].Content != "hi" {
		t.Errorf("history = %+v", messages)
	}
}

func TestAgentRunLoopsUntilOrchestratorStops(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{
		textResponse("thinking"),
		textResponse("final"),
	}}
	agent := NewAgent(p)
	orch := &passthroughOrch{replies: [][]ChatMessage{{UserMessage("continue")}}}

	resp, messages, err := agent.Run(context.Background(), "S", []ChatMessage{UserMessage("go")}, orch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2", p.calls)
	}
	if resp.Content != "final" {
		t.Errorf("final content = %q", resp.Content)
	}
	// user, assistant, continue-user, assistant
	if len(messages) != 4 {
		t.Fatalf("history length = %d, want 4", len(messages))
	}
	if messages[2].Content != "continue" {
		t.Errorf("orchestrator reply not appended: %+v", messages[2])
	}

	// Every request carries exactly one system message, even after loops.
	for i, req := range p.requests {
		if req.Messages[0].Role != "system" {
			t.Errorf("request %d missing leading system message", i)
		}
		for _, m := range req.Messages[1:] {
			if m.Role == "system" {
				t.Errorf("request %d has duplicated system message", i)
			}
		}
	}
}

func TestAgentRunProviderError(t *testing.T) {
	p := &mockProvider{errs: []error{&ErrHTTP{Status: 500, Body: "boom"}}}
	agent := NewAgent(p)

	_, _, err := agent.Run(context.Background(), "S", nil, &passthroughOrch{})
	if err == nil || !strings.Contains(err.Error(), "completion failed") {
		t.Errorf("err = %v", err)
	}
}

func TestAgentCompressTranscriptFormat(t *testing.T) {
	p := &mockProvider{responses: []ChatResponse{textResponse("  the summary  ")}}
	agent := NewAgent(p)

	messages := []ChatMessage{
		UserMessage("first question"),
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "1", Name: "run_command"}}},
		AssistantMessage("the answer"),
	}
	summary, err := agent.Compress(context.Background(), messages)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if summary != "the summary" {
		t.Errorf("summary = %q, not trimmed", summary)
	}

	req := p.requests[0]
	if !strings.Contains(req.Messages[0].Content, "summarizer") {
		t.Errorf("system prompt = %q", req.Messages[0].Content)
	}
	transcript := req.Messages[1].Content
	want := "[USER]\nfirst question\n\n[ASSISTANT]\nthe answer"
	if transcript != want {
		t.Errorf("transcript = %q, want %q", transcript, want)
	}
	if req.GenerationParams == nil || req.GenerationParams.Temperature == nil {
		t.Fatal("temperature not set")
	}
	if got := *req.GenerationParams.Temperature; got > 0.5 {
		t.Errorf("temperature = %v, want low", got)
	}
}

func TestAgentCompressEmptyTranscript(t *testing.T) {
	p := &mockProvider{}
	agent := NewAgent(p)

	// Only content-free messages: no LLM call at all.
	messages := []ChatMessage{
		{Role: "assistant", ToolCalls: []ToolCall{{ID: "1", Name: "x"}}},
	}
	summary, err := agent.Compress(context.Background(), messages)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if summary != "" {
		t.Errorf("summary = %q, want empty", summary)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times for empty transcript", p.calls)
	}
}
