package vigil

import (
	"context"
	"fmt"
	"sync"
)

// mockProvider replays scripted responses and records every request it
// receives.
type mockProvider struct {
	mu        sync.Mutex
	responses []ChatResponse
	errs      []error
	requests  []ChatRequest
	calls     int
}

var _ Provider = (*mockProvider)(nil)

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return ChatResponse{}, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return ChatResponse{Content: "done", FinishReason: "stop"}, nil
}

func textResponse(content string) ChatResponse {
	return ChatResponse{Content: content, FinishReason: "stop"}
}

func toolCallResponse(calls ...ToolCall) ChatResponse {
	return ChatResponse{ToolCalls: calls, FinishReason: "tool_calls"}
}

// sentMessage is one outbound messaging call captured by recorderMessaging.
type sentMessage struct {
	Kind    string // "notify", "chat", "image", "reaction"
	ChatID  string
	Text    string
	Emoji   string
	Payload []byte
}

// recorderMessaging captures all outbound messaging for assertions.
type recorderMessaging struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

var _ Messaging = (*recorderMessaging)(nil)

func (r *recorderMessaging) record(m sentMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, m)
	return r.err
}

func (r *recorderMessaging) Notify(ctx context.Context, text string) error {
	return r.record(sentMessage{Kind: "notify", Text: text})
}

func (r *recorderMessaging) SendToChat(ctx context.Context, chatID, text string) error {
	return r.record(sentMessage{Kind: "chat", ChatID: chatID, Text: text})
}

func (r *recorderMessaging) SendImageToChat(ctx context.Context, chatID, filename string, image []byte) error {
	return r.record(sentMessage{Kind: "image", ChatID: chatID, Text: filename, Payload: image})
}

func (r *recorderMessaging) AddReaction(ctx context.Context, chatID, messageID, emoji string) error {
	return r.record(sentMessage{Kind: "reaction", ChatID: chatID, Emoji: emoji})
}

func (r *recorderMessaging) byKind(kind string) []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMessage
	for _, m := range r.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// fakeRuntime serves canned file contents and records commands.
type fakeRuntime struct {
	files    map[string][]byte
	commands []string
	readErr  error
}

var _ Runtime = (*fakeRuntime)(nil)

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{files: make(map[string][]byte)}
}

func (f *fakeRuntime) Execute(ctx context.Context, command string) map[string]any {
	f.commands = append(f.commands, command)
	return execResult("ok", "", 0)
}

func (f *fakeRuntime) ReadFile(ctx context.Context, filename string, startLine, numLines int) map[string]any {
	raw, ok := f.files[filename]
	if !ok {
		return errorResult("no such file: %s", filename)
	}
	page, end, total := readPage(string(raw), startLine, numLines)
	if startLine < 1 {
		startLine = 1
	}
	return readResult(filename, page, startLine, end, total)
}

func (f *fakeRuntime) WriteFile(ctx context.Context, filename, content string) map[string]any {
	f.files[filename] = []byte(content)
	return successResult("Content saved to " + filename)
}

func (f *fakeRuntime) EditFile(ctx context.Context, filename string, edits []FileEdit) map[string]any {
	raw, ok := f.files[filename]
	if !ok {
		return errorResult("no such file: %s", filename)
	}
	edited, errRes := applyEdits(filename, string(raw), edits)
	if errRes != nil {
		return errRes
	}
	f.files[filename] = []byte(edited)
	return successResult("Successfully edited " + filename)
}

func (f *fakeRuntime) ReadFileInternal(ctx context.Context, filename string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	raw, ok := f.files[filename]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", filename)
	}
	return raw, nil
}
