package vigil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// EventLogger records agent activity events, appending them as JSON lines
// to a local file and/or shipping them to an external collector over HTTP.
// Delivery is best-effort and asynchronous: events are queued on a bounded
// channel and written by a single worker; when the queue is full the event
// is dropped rather than blocking the agent loop.
//
// A nil *EventLogger is valid and discards everything, so callers never
// need to branch on whether logging is configured.
type EventLogger struct {
	endpoint string
	apiKey   string
	filePath string
	client   *http.Client
	logger   *slog.Logger

	file  *os.File
	queue chan eventEnvelope
	once  sync.Once
	done  chan struct{}
}

type eventEnvelope struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
}

// EventLogOption configures an EventLogger.
type EventLogOption func(*EventLogger)

// WithEventLogFile appends every event as a JSON line to path.
func WithEventLogFile(path string) EventLogOption {
	return func(l *EventLogger) { l.filePath = path }
}

// NewEventLogger creates a logger posting to endpoint. An empty endpoint
// with no file sink yields nil, which all methods accept.
func NewEventLogger(endpoint, apiKey string, logger *slog.Logger, opts ...EventLogOption) *EventLogger {
	if logger == nil {
		logger = nopLogger()
	}
	l := &EventLogger{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
		logger:   logger,
		queue:    make(chan eventEnvelope, 256),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.endpoint == "" && l.filePath == "" {
		return nil
	}
	if l.filePath != "" {
		f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			l.logger.Warn("event log file open failed", slog.String("error", err.Error()))
		} else {
			l.file = f
		}
	}
	go l.run()
	return l
}

// ToolUse records a tool invocation with its arguments and result.
func (l *EventLogger) ToolUse(tool string, args map[string]any, result map[string]any) {
	l.enqueue("tool_use", map[string]any{"tool": tool, "args": args, "result": result})
}

// AgentResponse records a final assistant response.
func (l *EventLogger) AgentResponse(content string) {
	l.enqueue("agent_response", map[string]any{"content": content})
}

// Close stops the worker after draining queued events.
func (l *EventLogger) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() { close(l.queue) })
	<-l.done
	if l.file != nil {
		l.file.Close()
	}
}

func (l *EventLogger) enqueue(eventType string, data map[string]any) {
	if l == nil {
		return
	}
	env := eventEnvelope{
		ID:        NewID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      eventType,
		Data:      data,
	}
	select {
	case l.queue <- env:
	default:
		l.logger.Warn("event logger queue full, dropping event", slog.String("type", eventType))
	}
}

func (l *EventLogger) run() {
	defer close(l.done)
	for env := range l.queue {
		l.write(env)
	}
}

func (l *EventLogger) write(env eventEnvelope) {
	body, err := json.Marshal(env)
	if err != nil {
		l.logger.Warn("event logger marshal failed", slog.String("error", err.Error()))
		return
	}
	if l.file != nil {
		if _, err := l.file.Write(append(body, '\n')); err != nil {
			l.logger.Warn("event log file write failed", slog.String("error", err.Error()))
		}
	}
	if l.endpoint != "" {
		l.post(body)
	}
}

func (l *EventLogger) post(body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("x-api-key", l.apiKey)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.Warn("event logger post failed", slog.String("error", err.Error()))
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		l.logger.Warn("event logger post rejected", slog.Int("status", resp.StatusCode))
	}
}
