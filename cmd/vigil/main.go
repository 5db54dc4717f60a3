// Command vigil runs the always-on agent: the scheduler event loop, the
// Telegram frontend, and optionally the HTTP ingress API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vigil-agent/vigil"
	"github.com/vigil-agent/vigil/api"
	"github.com/vigil-agent/vigil/frontend/telegram"
	"github.com/vigil-agent/vigil/internal/config"
	"github.com/vigil-agent/vigil/observer"
	"github.com/vigil-agent/vigil/provider/openaicompat"
	"github.com/vigil-agent/vigil/store/postgres"
	"github.com/vigil-agent/vigil/store/sqlite"
	"github.com/vigil-agent/vigil/toolbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vigil:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load(os.Getenv("VIGIL_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability
	tracer := vigil.NopTracer()
	if cfg.Observer.Enabled {
		if cfg.Observer.Endpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observer.Endpoint)
		}
		shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init observer: %w", err)
		}
		defer shutdown(context.Background())
		tracer = observer.NewTracer()
	}

	// LLM provider
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	provider := vigil.WithRetry(openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL))
	agent := vigil.NewAgent(provider,
		vigil.WithAgentLogger(logger),
		vigil.WithAgentTracer(tracer),
	)

	// Execution runtime: container when one is named, host otherwise.
	var rt vigil.Runtime
	var ensureWorkspace func(context.Context) error
	if cfg.Container.Name != "" {
		cr := vigil.NewContainerRuntime(cfg.Container.Runtime, cfg.Container.Name,
			vigil.WithContainerLogger(logger))
		if err := cr.Ping(ctx); err != nil {
			return fmt.Errorf("container %s not reachable: %w", cfg.Container.Name, err)
		}
		rt = cr
		ensureWorkspace = cr.Ping
	} else {
		hr, err := vigil.NewHostRuntime(cfg.Workspace.Dir, logger)
		if err != nil {
			return fmt.Errorf("host runtime: %w", err)
		}
		rt = hr
	}

	// Tools
	skills := vigil.NewSkillLoader(cfg.Workspace.SkillsDir)
	registry := vigil.NewToolRegistry(time.Duration(cfg.Agent.ToolTimeout) * time.Second)
	deps := toolbox.Deps{
		Runtime: rt,
		Skills:  skills,
		Fetcher: toolbox.NewFetcher(),
	}
	if cfg.Search.BraveAPIKey != "" {
		deps.Search = toolbox.NewSearchClient(cfg.Search.BraveAPIKey)
	}
	if err := toolbox.Register(registry, deps); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	prompts := vigil.NewPromptBuilder(cfg.Workspace.Dir, skills)

	// Conversation store
	var store vigil.ConversationStore
	switch cfg.Database.Driver {
	case "sqlite":
		st := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
		defer st.Close()
		store = st
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		st := postgres.New(pool)
		if err := st.Init(ctx); err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		store = st
	default:
		store = vigil.NewMemoryStore()
	}

	// Messaging frontend
	var messaging vigil.Messaging
	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot = telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.NotifyChannelID,
			telegram.WithAllowedUser(cfg.Telegram.AllowedUserID),
			telegram.WithLogger(logger))
		messaging = bot
	} else {
		logger.Warn("no telegram token configured, messaging disabled")
		messaging = vigil.NullMessaging{}
	}

	var eventOpts []vigil.EventLogOption
	if cfg.EventLog.Path != "" {
		eventOpts = append(eventOpts, vigil.WithEventLogFile(cfg.EventLog.Path))
	}
	events := vigil.NewEventLogger(cfg.EventLog.Endpoint, cfg.EventLog.APIKey, logger, eventOpts...)
	if events != nil {
		defer events.Close()
	}

	schedOpts := []vigil.SchedulerOption{
		vigil.WithWakeInterval(time.Duration(cfg.Agent.WakeIntervalSeconds) * time.Second),
		vigil.WithContextMaxTokens(cfg.Agent.ContextMaxTokens),
		vigil.WithSchedulerLogger(logger),
		vigil.WithSchedulerTracer(tracer),
		vigil.WithEventLogger(events),
	}
	if ensureWorkspace != nil {
		schedOpts = append(schedOpts, vigil.WithEnsureWorkspace(ensureWorkspace))
	}
	sched := vigil.NewScheduler(agent, cfg.LLM.Model, registry, prompts, messaging, rt, store, schedOpts...)

	errCh := make(chan error, 3)

	go func() {
		errCh <- sched.Run(ctx)
	}()

	if bot != nil {
		go func() {
			errCh <- bot.Run(ctx, sched)
		}()
	}

	if cfg.API.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		server := api.NewServer(addr, sched, logger)
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	logger.Info("vigil started",
		slog.String("model", cfg.LLM.Model),
		slog.String("store", cfg.Database.Driver))

	err := <-errCh
	stop()
	if err != nil && ctx.Err() != nil {
		// Normal shutdown path, the context cancellation propagated.
		return nil
	}
	return err
}
