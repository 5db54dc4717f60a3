package vigil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEventLoggerNilIsSafe(t *testing.T) {
	var l *EventLogger
	l.ToolUse("x", nil, nil)
	l.AgentResponse("y")
	l.Close()
}

func TestEventLoggerNoSinksYieldsNil(t *testing.T) {
	if l := NewEventLogger("", "key", nil); l != nil {
		t.Error("expected nil logger when neither endpoint nor file is set")
	}
}

func TestEventLoggerAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	l := NewEventLogger("", "", nil, WithEventLogFile(path))
	if l == nil {
		t.Fatal("file-only logger is nil")
	}
	l.ToolUse("run_command", map[string]any{"command": "ls"}, map[string]any{"status": "success"})
	l.AgentResponse("done")
	l.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first, second eventEnvelope
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 not JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 not JSON: %v", err)
	}
	if first.Type != "tool_use" || second.Type != "agent_response" {
		t.Errorf("types = %q, %q", first.Type, second.Type)
	}

	// Reopening appends rather than truncates.
	l = NewEventLogger("", "", nil, WithEventLogFile(path))
	l.AgentResponse("later")
	l.Close()
	raw, _ = os.ReadFile(path)
	if n := len(strings.Split(strings.TrimSpace(string(raw)), "\n")); n != 3 {
		t.Errorf("after reopen got %d lines, want 3", n)
	}
}

func TestEventLoggerPostsEvents(t *testing.T) {
	var mu sync.Mutex
	var received []eventEnvelope
	var apiKeys []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env eventEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			t.Errorf("bad event body: %v", err)
		}
		mu.Lock()
		received = append(received, env)
		apiKeys = append(apiKeys, r.Header.Get("x-api-key"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l := NewEventLogger(srv.URL, "secret", nil)
	l.ToolUse("run_command", map[string]any{"command": "ls"}, map[string]any{"status": "success"})
	l.AgentResponse("Heartbeat Response:\n\nall good")
	l.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d events, want 2", len(received))
	}
	if received[0].Type != "tool_use" {
		t.Errorf("first event type = %q", received[0].Type)
	}
	if received[0].Data["tool"] != "run_command" {
		t.Errorf("tool_use data = %v", received[0].Data)
	}
	if received[1].Type != "agent_response" {
		t.Errorf("second event type = %q", received[1].Type)
	}
	if _, err := time.Parse(time.RFC3339, received[0].Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", received[0].Timestamp, err)
	}
	if received[0].ID == "" || received[0].ID == received[1].ID {
		t.Errorf("event IDs = %q, %q", received[0].ID, received[1].ID)
	}
	for _, k := range apiKeys {
		if k != "secret" {
			t.Errorf("x-api-key = %q", k)
		}
	}
}

func TestEventLoggerSurvivesDeadCollector(t *testing.T) {
	l := NewEventLogger("http://127.0.0.1:1/nowhere", "", nil)
	l.AgentResponse("dropped on the floor")
	l.Close() // must not hang or panic
}
