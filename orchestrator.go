package vigil

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// maxParallelDispatch bounds concurrent tool executions in one turn.
const maxParallelDispatch = 10

// Orchestrator decides what happens between LLM turns: it supplies the
// tool schemas for the completion call and turns each assistant message
// into follow-up messages. An empty Process result terminates Agent.Run.
type Orchestrator interface {
	Tools() []ToolDefinition
	Process(ctx context.Context, message ChatMessage, finishReason string) []ChatMessage
}

// toolCallResult pairs a tool call with its outcome, preserving the
// call's position in the assistant message.
type toolCallResult struct {
	toolID   string
	toolName string
	args     map[string]any
	result   map[string]any
}

// orchestratorCore is the shared machinery of both orchestrators: tool
// call parsing, validation, parallel dispatch and the continue nudge.
// Concrete orchestrators own a registry clone so instance-scoped tools
// never leak into other events.
type orchestratorCore struct {
	model    string
	registry *ToolRegistry
	events   *EventLogger
	logger   *slog.Logger
}

func newOrchestratorCore(model string, registry *ToolRegistry, events *EventLogger, logger *slog.Logger) orchestratorCore {
	if logger == nil {
		logger = nopLogger()
	}
	return orchestratorCore{
		model:    model,
		registry: registry.Clone(),
		events:   events,
		logger:   logger,
	}
}

func (c *orchestratorCore) Tools() []ToolDefinition {
	return c.registry.Definitions()
}

// handleToolCall runs one tool call end to end. Every failure mode
// becomes an error result in the transcript; nothing propagates as an
// error to the loop.
func (c *orchestratorCore) handleToolCall(ctx context.Context, tc ToolCall) toolCallResult {
	handler, ok := c.registry.Handler(tc.Name)
	if !ok {
		return toolCallResult{
			toolID:   tc.ID,
			toolName: tc.Name,
			args:     map[string]any{},
			result: map[string]any{
				"status":  "error",
				"message": fmt.Sprintf("No such tool named %s", tc.Name),
			},
		}
	}

	c.logger.Debug("executing tool",
		slog.String("tool", tc.Name),
		slog.String("args", string(tc.Args)))

	var args map[string]any
	var result map[string]any
	if err := json.Unmarshal(tc.Args, &args); err != nil {
		result = map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("Invalid JSON in tool call arguments: %v", err),
		}
	} else {
		if strings.HasPrefix(c.model, "deepseek-ai/") {
			decodeStringArgs(args)
		}
		if err := c.registry.Validate(tc.Name, args); err != nil {
			result = map[string]any{
				"status":  "error",
				"message": fmt.Sprintf("Invalid tool call arguments: %v", err),
			}
		} else {
			result = handler(ctx, args)
		}
	}

	if result["status"] == "error" {
		c.logger.Error("tool call failed",
			slog.String("tool", tc.Name),
			slog.Any("result", result))
	} else {
		c.logger.Debug("tool call completed", slog.String("tool", tc.Name))
	}
	return toolCallResult{toolID: tc.ID, toolName: tc.Name, args: args, result: result}
}

// dispatchParallel runs all tool calls of one assistant turn concurrently,
// bounded by maxParallelDispatch, and returns results in call order.
func (c *orchestratorCore) dispatchParallel(ctx context.Context, calls []ToolCall) []toolCallResult {
	results := make([]toolCallResult, len(calls))
	sem := make(chan struct{}, maxParallelDispatch)
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc ToolCall) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.handleToolCall(ctx, tc)
		}(i, tc)
	}
	wg.Wait()
	return results
}

// toolReplies converts dispatch results into tool-role transcript
// messages and records each tool use on the event logger.
func (c *orchestratorCore) toolReplies(results []toolCallResult) []ChatMessage {
	replies := make([]ChatMessage, 0, len(results))
	for _, r := range results {
		c.events.ToolUse(r.toolName, r.args, r.result)
		content, err := json.Marshal(r.result)
		if err != nil {
			content = []byte(`{"status":"error","message":"unserializable tool result"}`)
		}
		replies = append(replies, ToolResultMessage(r.toolID, string(content)))
	}
	return replies
}

// decodeStringArgs works around providers that double-encode tool
// arguments: each string value that parses as JSON is replaced by its
// decoded form.
func decodeStringArgs(args map[string]any) {
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			args[k] = decoded
		}
	}
}

// HeartbeatOrchestrator handles self-initiated sessions. The final
// response is broadcast unless the model ends it with the NO_REPORT
// sentinel, which keeps routine sessions silent.
type HeartbeatOrchestrator struct {
	orchestratorCore
	messaging Messaging
}

var _ Orchestrator = (*HeartbeatOrchestrator)(nil)

// NewHeartbeatOrchestrator clones the registry and binds the messaging
// surface for final-response broadcast.
func NewHeartbeatOrchestrator(model string, registry *ToolRegistry, messaging Messaging, events *EventLogger, logger *slog.Logger) *HeartbeatOrchestrator {
	return &HeartbeatOrchestrator{
		orchestratorCore: newOrchestratorCore(model, registry, events, logger),
		messaging:        messaging,
	}
}

func (o *HeartbeatOrchestrator) Process(ctx context.Context, message ChatMessage, finishReason string) []ChatMessage {
	if len(message.ToolCalls) > 0 {
		return o.toolReplies(o.dispatchParallel(ctx, message.ToolCalls))
	}
	if finishReason != "stop" {
		return []ChatMessage{UserMessage("continue")}
	}

	o.events.AgentResponse("Heartbeat Response:\n\n" + message.Content)
	content := strings.TrimSpace(message.Content)
	if content != "" && !strings.HasSuffix(content, "NO_REPORT") {
		if err := o.messaging.Notify(ctx, content); err != nil {
			o.logger.Error("heartbeat notify failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// HumanInputOrchestrator handles sessions triggered by a human message.
// It registers two instance-scoped tools closed over the triggering chat
// and message, streams interim assistant text to the chat, and always
// replies with the final response.
type HumanInputOrchestrator struct {
	orchestratorCore
	messaging Messaging
	runtime   Runtime
	chatID    string
	messageID string
}

var _ Orchestrator = (*HumanInputOrchestrator)(nil)

// maxImageBytes caps outbound image uploads.
const maxImageBytes = 10 * 1024 * 1024

var reactionEmojis = []string{
	"OK", "THUMBSUP", "MUSCLE", "LOL", "THINKING",
	"Shrug", "Fire", "Coffee", "PARTY", "CAKE", "HEART",
}

// NewHumanInputOrchestrator clones the registry and registers the
// chat-scoped add_reaction and send_image tools on the clone.
func NewHumanInputOrchestrator(chatID, messageID, model string, registry *ToolRegistry, messaging Messaging, runtime Runtime, events *EventLogger, logger *slog.Logger) *HumanInputOrchestrator {
	o := &HumanInputOrchestrator{
		orchestratorCore: newOrchestratorCore(model, registry, events, logger),
		messaging:        messaging,
		runtime:          runtime,
		chatID:           chatID,
		messageID:        messageID,
	}
	o.registerInstanceTools()
	return o
}

func (o *HumanInputOrchestrator) registerInstanceTools() {
	emojiList, _ := json.Marshal(reactionEmojis)
	reactionSchema := json.RawMessage(fmt.Sprintf(`{
		"type": "object",
		"properties": {
			"emoji": {
				"type": "string",
				"enum": %s,
				"description": "The emoji type to react with. %s"
			}
		},
		"required": ["emoji"]
	}`, emojiList, strings.Join(reactionEmojis, ", ")))

	_ = o.registry.Register("add_reaction",
		"React to the current message with an emoji.",
		reactionSchema,
		func(ctx context.Context, args map[string]any) map[string]any {
			emoji, _ := args["emoji"].(string)
			if err := o.messaging.AddReaction(ctx, o.chatID, o.messageID, emoji); err != nil {
				return errorResult("%v", err)
			}
			return successResult(fmt.Sprintf("Added reaction %s to message", emoji))
		})

	imageSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"image_path": {
				"type": "string",
				"description": "Absolute path to the image file to send."
			}
		},
		"required": ["image_path"]
	}`)

	_ = o.registry.Register("send_image",
		"Send an image file to the user. Image file size must be under 10 MiB.",
		imageSchema,
		func(ctx context.Context, args map[string]any) map[string]any {
			imagePath, _ := args["image_path"].(string)
			raw, err := o.runtime.ReadFileInternal(ctx, imagePath)
			if err != nil {
				return errorResult("%v", err)
			}
			if len(raw) == 0 {
				return errorResult("Image file is empty.")
			}
			if len(raw) > maxImageBytes {
				return errorResult("Image file is too large: %d bytes (max %d)", len(raw), maxImageBytes)
			}
			if err := o.messaging.SendImageToChat(ctx, o.chatID, imagePath, raw); err != nil {
				return errorResult("%v", err)
			}
			return successResult(fmt.Sprintf("Sent image %s to user", imagePath))
		})
}

func (o *HumanInputOrchestrator) Process(ctx context.Context, message ChatMessage, finishReason string) []ChatMessage {
	if len(message.ToolCalls) > 0 {
		// Interim text alongside tool calls is progress the user should see.
		if message.Content != "" {
			if err := o.messaging.SendToChat(ctx, o.chatID, message.Content); err != nil {
				o.logger.Error("interim send failed", slog.String("error", err.Error()))
			}
		}
		return o.toolReplies(o.dispatchParallel(ctx, message.ToolCalls))
	}
	if finishReason != "stop" {
		return []ChatMessage{UserMessage("continue")}
	}

	o.events.AgentResponse("Human Input Response:\n\n" + message.Content)
	content := strings.TrimSpace(message.Content)
	if err := o.messaging.SendToChat(ctx, o.chatID, content); err != nil {
		o.logger.Error("final send failed", slog.String("error", err.Error()))
	}
	return nil
}
