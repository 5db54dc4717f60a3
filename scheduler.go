package vigil

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Scheduler is the single consumer of the event queue. It selects the
// orchestrator for each event, runs the agent loop, and owns all
// conversation state mutation. The heartbeat arm-task is reset after
// every event so inbound human activity postpones the next autonomous
// wake by at least the wake interval.
type Scheduler struct {
	agent     *Agent
	registry  *ToolRegistry
	prompts   *PromptBuilder
	messaging Messaging
	events    *EventLogger
	store     ConversationStore
	runtime   Runtime
	model     string

	wakeInterval     time.Duration
	contextMaxTokens int

	queue  chan Event
	logger *slog.Logger
	tracer Tracer
	now    func() time.Time

	// ensureWorkspace runs before each event so a stopped or wedged
	// workspace surfaces as a per-event error instead of a tool failure
	// mid-run. Nil means no check.
	ensureWorkspace func(context.Context) error

	// cancelHeartbeat stops the pending arm-task. Only touched from the
	// Run goroutine.
	cancelHeartbeat context.CancelFunc
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWakeInterval sets the heartbeat period (default 30 minutes).
func WithWakeInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.wakeInterval = d
		}
	}
}

// WithContextMaxTokens sets the /compress threshold (default 30000).
func WithContextMaxTokens(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.contextMaxTokens = n
		}
	}
}

// WithSchedulerLogger sets the logger. Defaults to a no-op logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSchedulerTracer sets the tracer. Defaults to a no-op tracer.
func WithSchedulerTracer(t Tracer) SchedulerOption {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithSchedulerClock overrides the wall clock, for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEventLogger attaches an event logger. Nil is accepted and means
// no external event shipping.
func WithEventLogger(l *EventLogger) SchedulerOption {
	return func(s *Scheduler) { s.events = l }
}

// WithEnsureWorkspace installs a liveness check run before each event,
// typically ContainerRuntime.Ping.
func WithEnsureWorkspace(fn func(context.Context) error) SchedulerOption {
	return func(s *Scheduler) { s.ensureWorkspace = fn }
}

// NewScheduler wires the scheduler over its collaborators. store may be
// nil, in which case an in-memory store is used.
func NewScheduler(agent *Agent, model string, registry *ToolRegistry, prompts *PromptBuilder, messaging Messaging, runtime Runtime, store ConversationStore, opts ...SchedulerOption) *Scheduler {
	if messaging == nil {
		messaging = NullMessaging{}
	}
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Scheduler{
		agent:            agent,
		registry:         registry,
		prompts:          prompts,
		messaging:        messaging,
		store:            store,
		runtime:          runtime,
		model:            model,
		wakeInterval:     30 * time.Minute,
		contextMaxTokens: 30000,
		queue:            make(chan Event, 256),
		logger:           nopLogger(),
		tracer:           NopTracer(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue pushes an event onto the queue. Safe for concurrent use by
// producers (messaging adapter, HTTP ingress, heartbeat timer).
func (s *Scheduler) Enqueue(event Event) {
	s.queue <- event
}

// Run drains the event queue until the context is cancelled. One event
// is fully processed, including all inner LLM and tool iterations,
// before the next is taken. Per-event errors are reported and the loop
// continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.armHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			s.disarmHeartbeat()
			return ctx.Err()
		case event := <-s.queue:
			s.disarmHeartbeat()
			if err := s.safeDispatch(ctx, event); err != nil {
				s.logger.Error("event processing failed", slog.String("error", err.Error()))
				if nerr := s.messaging.Notify(ctx, "Error during event processing: "+err.Error()); nerr != nil {
					s.logger.Error("error notify failed", slog.String("error", nerr.Error()))
				}
			}
			s.armHeartbeat(ctx)
		}
	}
}

// safeDispatch contains per-event failures, including panics from tool
// handlers or collaborators, so the loop never dies on one bad event.
func (s *Scheduler) safeDispatch(ctx context.Context, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during event processing: %v", p)
		}
	}()
	return s.dispatch(ctx, event)
}

func (s *Scheduler) dispatch(ctx context.Context, event Event) error {
	if s.ensureWorkspace != nil {
		if err := s.ensureWorkspace(ctx); err != nil {
			return fmt.Errorf("workspace not ready: %w", err)
		}
	}
	switch e := event.(type) {
	case HeartbeatEvent:
		return s.handleHeartbeat(ctx)
	case HumanInputEvent:
		return s.handleHumanInput(ctx, e)
	default:
		return fmt.Errorf("unknown event type %T", event)
	}
}

func (s *Scheduler) handleHeartbeat(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.heartbeat")
	defer span.End()
	s.logger.Info("heartbeat event")

	prompt := s.prompts.Build("")
	now := s.now()
	zone, _ := now.Zone()
	userMsg := UserMessage(fmt.Sprintf("Current Time: %s\nTimezone: %s\nSYSTEM EVENT: Heartbeat",
		now.Format("2006-01-02 15:04:05"), zone))

	orch := NewHeartbeatOrchestrator(s.model, s.registry, s.messaging, s.events, s.logger)
	_, _, err := s.agent.Run(ctx, prompt, []ChatMessage{userMsg}, orch)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *Scheduler) handleHumanInput(ctx context.Context, e HumanInputEvent) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.human_input",
		StringAttr("chat_id", e.ChatID))
	defer span.End()
	s.logger.Info("human input event",
		slog.String("chat_id", e.ChatID),
		slog.String("message_id", e.MessageID))

	switch e.Message {
	case "/new":
		if err := s.store.Save(ctx, NewConversation(e.ChatID)); err != nil {
			return err
		}
		return s.messaging.SendToChat(ctx, e.ChatID, "New session started")
	case "/heartbeat":
		s.Enqueue(HeartbeatEvent{})
		return s.messaging.SendToChat(ctx, e.ChatID, "New heartbeat started")
	case "/compress":
		return s.compressConversation(ctx, e.ChatID)
	}

	conv, err := s.loadOrCreate(ctx, e.ChatID)
	if err != nil {
		return err
	}
	if conv.Seen(e.MessageID) {
		s.logger.Debug("duplicate message dropped", slog.String("message_id", e.MessageID))
		return nil
	}
	conv.Mark(e.MessageID)

	now := s.now()
	zone, _ := now.Zone()
	conv.Messages = append(conv.Messages, UserMessage(fmt.Sprintf("Message Time: %s\nTimezone: %s\n\n%s",
		now.Format("2006-01-02 15:04:05"), zone, e.Message)))

	prompt := s.prompts.Build(conv.PreviousSummary)
	orch := NewHumanInputOrchestrator(e.ChatID, e.MessageID, s.model, s.registry, s.messaging, s.runtime, s.events, s.logger)

	resp, messages, err := s.agent.Run(ctx, prompt, conv.Messages, orch)
	if err != nil {
		span.RecordError(err)
		return err
	}
	conv.Messages = messages
	conv.TotalTokens = resp.Usage.TotalTokens
	return s.store.Save(ctx, conv)
}

func (s *Scheduler) compressConversation(ctx context.Context, chatID string) error {
	conv, err := s.loadOrCreate(ctx, chatID)
	if err != nil {
		return err
	}
	if conv.TotalTokens < s.contextMaxTokens {
		return s.messaging.SendToChat(ctx, chatID,
			fmt.Sprintf("No need to compress, total tokens: %d", conv.TotalTokens))
	}
	summary, err := s.agent.Compress(ctx, conv.Messages)
	if err != nil {
		return err
	}
	conv.PreviousSummary = summary
	conv.Messages = nil
	conv.TotalTokens = 0
	if err := s.store.Save(ctx, conv); err != nil {
		return err
	}
	return s.messaging.SendToChat(ctx, chatID, "Conversation compressed")
}

func (s *Scheduler) loadOrCreate(ctx context.Context, chatID string) (*Conversation, error) {
	conv, err := s.store.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = NewConversation(chatID)
	}
	return conv, nil
}

// armHeartbeat spawns a timer that enqueues a HeartbeatEvent after the
// wake interval, unless disarmed first.
func (s *Scheduler) armHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithCancel(ctx)
	s.cancelHeartbeat = cancel
	go func() {
		timer := time.NewTimer(s.wakeInterval)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.Enqueue(HeartbeatEvent{})
		case <-hbCtx.Done():
		}
	}()
}

// disarmHeartbeat cancels the pending arm-task. Idempotent.
func (s *Scheduler) disarmHeartbeat() {
	if s.cancelHeartbeat != nil {
		s.cancelHeartbeat()
		s.cancelHeartbeat = nil
	}
}
