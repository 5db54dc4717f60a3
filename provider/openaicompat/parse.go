package openaicompat

import (
	"encoding/json"

	"github.com/vigil-agent/vigil"
)

// ParseResponse converts an OpenAI-format ChatResponse to a vigil
// ChatResponse. It extracts content, tool calls, finish reason and usage
// from choices[0].
func ParseResponse(resp ChatResponse) (vigil.ChatResponse, error) {
	var out vigil.ChatResponse

	if len(resp.Choices) == 0 {
		return out, nil
	}

	choice := resp.Choices[0]
	out.FinishReason = choice.FinishReason
	if choice.Message != nil {
		out.Content = choice.Message.Content
		out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
	}

	if resp.Usage != nil {
		out.Usage = vigil.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// ParseToolCalls converts OpenAI tool call requests to vigil ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid JSON is
// replaced with an empty object so argument validation produces a proper
// error result instead of a decode failure deep in the loop.
func ParseToolCalls(tcs []ToolCallRequest) []vigil.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]vigil.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, vigil.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
