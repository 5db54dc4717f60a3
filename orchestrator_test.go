package vigil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	r := NewToolRegistry(5 * time.Second)
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"]
	}`)
	err := r.Register("echo", "echoes the value back", schema,
		func(ctx context.Context, args map[string]any) map[string]any {
			return successResult(args["value"].(string))
		})
	if err != nil {
		t.Fatalf("Register echo: %v", err)
	}
	return r
}

func callJSON(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Args: json.RawMessage(args)}
}

func TestHandleToolCallUnknownTool(t *testing.T) {
	core := newOrchestratorCore("m", testRegistry(t), nil, nil)
	res := core.handleToolCall(context.Background(), callJSON("1", "ghost", `{}`))
	if res.result["status"] != "error" {
		t.Fatalf("status = %v", res.result["status"])
	}
	if res.result["message"] != "No such tool named ghost" {
		t.Errorf("message = %q", res.result["message"])
	}
}

func TestHandleToolCallInvalidJSON(t *testing.T) {
	core := newOrchestratorCore("m", testRegistry(t), nil, nil)
	res := core.handleToolCall(context.Background(), callJSON("1", "echo", `{not json`))
	msg, _ := res.result["message"].(string)
	if !strings.HasPrefix(msg, "Invalid JSON in tool call arguments:") {
		t.Errorf("message = %q", msg)
	}
}

func TestHandleToolCallSchemaViolation(t *testing.T) {
	core := newOrchestratorCore("m", testRegistry(t), nil, nil)
	res := core.handleToolCall(context.Background(), callJSON("1", "echo", `{"value": 7}`))
	msg, _ := res.result["message"].(string)
	if !strings.HasPrefix(msg, "Invalid tool call arguments:") {
		t.Errorf("message = %q", msg)
	}
}

func TestHandleToolCallSuccess(t *testing.T) {
	core := newOrchestratorCore("m", testRegistry(t), nil, nil)
	res := core.handleToolCall(context.Background(), callJSON("1", "echo", `{"value": "pong"}`))
	if res.result["status"] != "success" || res.result["message"] != "pong" {
		t.Errorf("result = %v", res.result)
	}
}

func TestDecodeStringArgsForDoubleEncodingModels(t *testing.T) {
	r := NewToolRegistry(time.Second)
	var got map[string]any
	err := r.Register("probe", "records args", nil,
		func(ctx context.Context, args map[string]any) map[string]any {
			got = args
			return nil
		})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	core := newOrchestratorCore("deepseek-ai/DeepSeek-V3", r, nil, nil)
	core.handleToolCall(context.Background(), callJSON("1", "probe", `{"edits": "[{\"a\": 1}]", "name": "plain"}`))

	if _, ok := got["edits"].([]any); !ok {
		t.Errorf("edits not decoded: %T", got["edits"])
	}
	// Non-JSON strings stay as-is.
	if got["name"] != "plain" {
		t.Errorf("name = %v", got["name"])
	}
}

func TestDispatchParallelPreservesOrder(t *testing.T) {
	r := NewToolRegistry(5 * time.Second)
	var running atomic.Int32
	err := r.Register("sleepy", "sleeps briefly", nil,
		func(ctx context.Context, args map[string]any) map[string]any {
			running.Add(1)
			time.Sleep(20 * time.Millisecond)
			return successResult(fmt.Sprint(args["n"]))
		})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	core := newOrchestratorCore("m", r, nil, nil)
	var calls []ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, callJSON(fmt.Sprint(i), "sleepy", fmt.Sprintf(`{"n": %d}`, i)))
	}

	start := time.Now()
	results := core.dispatchParallel(context.Background(), calls)
	elapsed := time.Since(start)

	for i, res := range results {
		if res.toolID != fmt.Sprint(i) {
			t.Errorf("result %d has toolID %s", i, res.toolID)
		}
		if res.result["message"] != fmt.Sprint(i) {
			t.Errorf("result %d = %v", i, res.result)
		}
	}
	// Sequential execution would take >= 120ms.
	if elapsed > 100*time.Millisecond {
		t.Errorf("dispatch took %v, not parallel", elapsed)
	}
}

func TestToolRepliesMarshalResults(t *testing.T) {
	core := newOrchestratorCore("m", testRegistry(t), nil, nil)
	replies := core.toolReplies([]toolCallResult{
		{toolID: "42", toolName: "echo", result: map[string]any{"status": "success", "message": "hi"}},
	})
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	if replies[0].Role != "tool" || replies[0].ToolCallID != "42" {
		t.Errorf("reply = %+v", replies[0])
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(replies[0].Content), &decoded); err != nil {
		t.Fatalf("reply content not JSON: %v", err)
	}
	if decoded["message"] != "hi" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestHeartbeatOrchestratorNotifies(t *testing.T) {
	msg := &recorderMessaging{}
	o := NewHeartbeatOrchestrator("m", testRegistry(t), msg, nil, nil)

	reply := o.Process(context.Background(), AssistantMessage("found something important"), "stop")
	if reply != nil {
		t.Errorf("expected termination, got %v", reply)
	}
	notifies := msg.byKind("notify")
	if len(notifies) != 1 || notifies[0].Text != "found something important" {
		t.Errorf("notifies = %v", notifies)
	}
}

func TestHeartbeatOrchestratorSuppressesNoReport(t *testing.T) {
	for _, content := range []string{"", "   ", "all quiet NO_REPORT", "NO_REPORT\n  "} {
		msg := &recorderMessaging{}
		o := NewHeartbeatOrchestrator("m", testRegistry(t), msg, nil, nil)
		o.Process(context.Background(), AssistantMessage(content), "stop")
		if n := len(msg.byKind("notify")); n != 0 {
			t.Errorf("content %q produced %d notifications", content, n)
		}
	}
}

func TestHeartbeatOrchestratorContinueNudge(t *testing.T) {
	o := NewHeartbeatOrchestrator("m", testRegistry(t), &recorderMessaging{}, nil, nil)
	reply := o.Process(context.Background(), AssistantMessage("cut off"), "length")
	if len(reply) != 1 || reply[0].Role != "user" || reply[0].Content != "continue" {
		t.Errorf("reply = %v", reply)
	}
}

func TestHeartbeatOrchestratorDispatchesToolCalls(t *testing.T) {
	o := NewHeartbeatOrchestrator("m", testRegistry(t), &recorderMessaging{}, nil, nil)
	assistant := ChatMessage{Role: "assistant", ToolCalls: []ToolCall{
		callJSON("a", "echo", `{"value": "one"}`),
		callJSON("b", "echo", `{"value": "two"}`),
	}}
	replies := o.Process(context.Background(), assistant, "tool_calls")
	if len(replies) != 2 {
		t.Fatalf("got %d replies", len(replies))
	}
	if replies[0].ToolCallID != "a" || replies[1].ToolCallID != "b" {
		t.Errorf("replies out of order: %v", replies)
	}
}

func TestHumanInputOrchestratorSendsFinalResponse(t *testing.T) {
	msg := &recorderMessaging{}
	o := NewHumanInputOrchestrator("chat1", "msg1", "m", testRegistry(t), msg, newFakeRuntime(), nil, nil)

	reply := o.Process(context.Background(), AssistantMessage("here you go"), "stop")
	if reply != nil {
		t.Errorf("expected termination, got %v", reply)
	}
	sent := msg.byKind("chat")
	if len(sent) != 1 || sent[0].ChatID != "chat1" || sent[0].Text != "here you go" {
		t.Errorf("sent = %v", sent)
	}
}

func TestHumanInputOrchestratorSendsInterimContent(t *testing.T) {
	msg := &recorderMessaging{}
	o := NewHumanInputOrchestrator("chat1", "msg1", "m", testRegistry(t), msg, newFakeRuntime(), nil, nil)

	assistant := ChatMessage{
		Role:      "assistant",
		Content:   "let me check that",
		ToolCalls: []ToolCall{callJSON("1", "echo", `{"value": "x"}`)},
	}
	replies := o.Process(context.Background(), assistant, "tool_calls")
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	sent := msg.byKind("chat")
	if len(sent) != 1 || sent[0].Text != "let me check that" {
		t.Errorf("interim sends = %v", sent)
	}
}

func TestHumanInputOrchestratorInstanceTools(t *testing.T) {
	base := testRegistry(t)
	msg := &recorderMessaging{}
	rt := newFakeRuntime()
	rt.files["/tmp/pic.png"] = []byte("pngbytes")

	o := NewHumanInputOrchestrator("chat1", "msg7", "m", base, msg, rt, nil, nil)

	// Instance tools live on the clone only.
	if _, ok := base.Handler("add_reaction"); ok {
		t.Error("add_reaction leaked into the shared registry")
	}
	for _, name := range []string{"add_reaction", "send_image"} {
		if _, ok := o.registry.Handler(name); !ok {
			t.Errorf("missing instance tool %s", name)
		}
	}

	res := o.handleToolCall(context.Background(), callJSON("1", "add_reaction", `{"emoji": "THUMBSUP"}`))
	if res.result["status"] != "success" {
		t.Fatalf("add_reaction: %v", res.result)
	}
	reactions := msg.byKind("reaction")
	if len(reactions) != 1 || reactions[0].Emoji != "THUMBSUP" {
		t.Errorf("reactions = %v", reactions)
	}

	res = o.handleToolCall(context.Background(), callJSON("2", "add_reaction", `{"emoji": "NOT_AN_EMOJI"}`))
	if res.result["status"] != "error" {
		t.Errorf("invalid emoji accepted: %v", res.result)
	}

	res = o.handleToolCall(context.Background(), callJSON("3", "send_image", `{"image_path": "/tmp/pic.png"}`))
	if res.result["status"] != "success" {
		t.Fatalf("send_image: %v", res.result)
	}
	images := msg.byKind("image")
	if len(images) != 1 || string(images[0].Payload) != "pngbytes" {
		t.Errorf("images = %v", images)
	}
}

func TestSendImageRejectsEmptyAndOversized(t *testing.T) {
	rt := newFakeRuntime()
	rt.files["/empty.png"] = nil
	rt.files["/big.png"] = make([]byte, maxImageBytes+1)

	o := NewHumanInputOrchestrator("c", "m", "model", testRegistry(t), &recorderMessaging{}, rt, nil, nil)

	res := o.handleToolCall(context.Background(), callJSON("1", "send_image", `{"image_path": "/empty.png"}`))
	if res.result["message"] != "Image file is empty." {
		t.Errorf("empty image message = %q", res.result["message"])
	}

	res = o.handleToolCall(context.Background(), callJSON("2", "send_image", `{"image_path": "/big.png"}`))
	msg, _ := res.result["message"].(string)
	if !strings.Contains(msg, "Image file is too large") {
		t.Errorf("oversized image message = %q", msg)
	}

	rt.readErr = errors.New("permission denied")
	res = o.handleToolCall(context.Background(), callJSON("3", "send_image", `{"image_path": "/any.png"}`))
	if res.result["status"] != "error" {
		t.Errorf("read error not propagated: %v", res.result)
	}
}
