package vigil

import (
	"context"
	"encoding/json"
)

// Event is a unit of work consumed by the Scheduler.
// HeartbeatEvent and HumanInputEvent are the only variants.
type Event interface {
	isEvent()
}

// HeartbeatEvent is a self-initiated wake-up fired by the heartbeat timer.
// It carries no payload and no conversation state.
type HeartbeatEvent struct{}

func (HeartbeatEvent) isEvent() {}

// HumanInputEvent is a message from a human, delivered via the chat
// platform adapter or the HTTP ingress.
type HumanInputEvent struct {
	ChatID    string
	MessageID string
	Message   string
}

func (HumanInputEvent) isEvent() {}

// ChatMessage is a single message in an LLM conversation.
type ChatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role:"tool" messages
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant messages requesting tools
}

// ToolCall is a tool invocation requested by the LLM.
// Args is the raw JSON arguments string as returned by the provider.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolDefinition describes a callable tool for the LLM's function-calling API.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// GenerationParams override provider defaults for a single request.
// Nil pointer fields are left at the provider's defaults.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Messages         []ChatMessage
	Tools            []ToolDefinition
	GenerationParams *GenerationParams
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResponse is a provider-agnostic chat completion response.
// FinishReason is the provider's stop reason ("stop", "length", "tool_calls", ...).
type ChatResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Provider generates chat completions. Implementations live under provider/.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// SystemMessage creates a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant-role message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// ToolResultMessage creates a tool-role message answering a tool call.
func ToolResultMessage(toolCallID, content string) ChatMessage {
	return ChatMessage{Role: "tool", ToolCallID: toolCallID, Content: content}
}

// Conversation is the per-chat state owned by the Scheduler. The Scheduler
// is its sole writer; see the single-consumer invariant on Scheduler.Run.
type Conversation struct {
	ChatID          string              `json:"chat_id"`
	Messages        []ChatMessage       `json:"messages"`
	MessageIDs      map[string]struct{} `json:"message_ids"`
	TotalTokens     int                 `json:"total_tokens"`
	PreviousSummary string              `json:"previous_summary"`
}

// NewConversation creates an empty conversation for a chat.
func NewConversation(chatID string) *Conversation {
	return &Conversation{
		ChatID:     chatID,
		MessageIDs: make(map[string]struct{}),
	}
}

// Seen reports whether an inbound message ID was already processed.
func (c *Conversation) Seen(messageID string) bool {
	_, ok := c.MessageIDs[messageID]
	return ok
}

// Mark records an inbound message ID as processed.
func (c *Conversation) Mark(messageID string) {
	if c.MessageIDs == nil {
		c.MessageIDs = make(map[string]struct{})
	}
	c.MessageIDs[messageID] = struct{}{}
}
