// Package api exposes the HTTP ingress: a bot endpoint that enqueues
// human input events and a health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vigil-agent/vigil"
)

// Enqueuer pushes events onto the scheduler queue.
type Enqueuer interface {
	Enqueue(event vigil.Event)
}

// Server is the HTTP ingress. It owns its listener lifecycle; Run blocks
// until the context is cancelled.
type Server struct {
	addr   string
	queue  Enqueuer
	logger *slog.Logger
}

// NewServer creates a server listening on addr (host:port).
func NewServer(addr string, queue Enqueuer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{addr: addr, queue: queue, logger: logger}
}

// Handler returns the HTTP handler, exposed separately for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bot", s.handleBot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("api server listening", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type botRequest struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.MessageID) == "" || req.Message == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "session_id, message_id and message are required"})
		return
	}

	s.queue.Enqueue(vigil.HumanInputEvent{
		ChatID:    req.SessionID,
		MessageID: req.MessageID,
		Message:   req.Message,
	})
	s.logger.Debug("bot message queued",
		slog.String("session_id", req.SessionID),
		slog.String("message_id", req.MessageID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
