// Command orchestratord is the durable task orchestrator's daemon: it loads
// config, opens the store, wires the broker (in-process or Redis-backed),
// starts the admission/review scheduler producers and the task-engine
// consumers, and serves the HTTP command/query surface until told to stop.
// Grounded on cmd/goclaw/main.go's startup sequence
// (config -> logger -> otel -> store -> recovery -> collaborators ->
// listener -> background loops -> graceful shutdown), trimmed to this
// system's collaborator set.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/basket/taskorc/internal/api"
	"github.com/basket/taskorc/internal/auditlog"
	"github.com/basket/taskorc/internal/broker"
	"github.com/basket/taskorc/internal/config"
	"github.com/basket/taskorc/internal/llm"
	"github.com/basket/taskorc/internal/mcp"
	"github.com/basket/taskorc/internal/notifier"
	"github.com/basket/taskorc/internal/policy"
	taskorcotel "github.com/basket/taskorc/internal/otel"
	"github.com/basket/taskorc/internal/scheduler"
	"github.com/basket/taskorc/internal/store"
	"github.com/basket/taskorc/internal/taskengine"
	"github.com/basket/taskorc/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v1.0-dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println("orchestratord", Version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, false)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "config_fingerprint", cfg.Fingerprint())

	otelProvider, err := taskorcotel.Init(ctx, taskorcotel.Config{
		Enabled:     os.Getenv("TASKORC_OTEL_ENABLED") == "1",
		Exporter:    os.Getenv("TASKORC_OTEL_EXPORTER"),
		Endpoint:    os.Getenv("TASKORC_OTEL_ENDPOINT"),
		ServiceName: "taskorc",
	})
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(ctx)

	metrics, err := taskorcotel.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_OTEL_METRICS_INIT", err)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.HomeDir, "taskorc.db")
	}
	st, err := store.Open(dbPath)
	if err != nil {
		fatalStartup(logger, "E_STORE_OPEN", err)
	}
	defer st.Close()
	logger.Info("startup phase", "phase", "schema_migrated", "db_path", dbPath)

	queue, closeQueue, err := buildQueue(cfg.Broker, logger)
	if err != nil {
		fatalStartup(logger, "E_BROKER_INIT", err)
	}
	defer func() { _ = closeQueue(context.Background()) }()
	logger.Info("startup phase", "phase", "broker_ready", "backend", cfg.Broker.Backend)

	llmProvider, llmModel, llmAPIKey := cfg.ResolveLLMConfig()
	llmClient, err := llm.NewGenkitClient(ctx, llm.Config{
		Provider: llmProvider,
		Model:    llmModel,
		APIKey:   llmAPIKey,
		Logger:   logger,
	})
	if err != nil {
		fatalStartup(logger, "E_LLM_INIT", err)
	}

	notif := buildNotifier(cfg.Notifier, logger)
	tools := buildToolProvider(cfg.MCP, logger)

	eng := taskengine.New(taskengine.Config{
		Store:    st,
		LLM:      llmClient,
		Tools:    tools,
		Queue:    queue,
		Notifier: notif,
		Audit:    auditlog.New(st),
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   otelProvider.Tracer,
		Model:    llmModel,
	})

	worker := taskengine.NewWorker(eng, queue, logger, taskengine.WorkerConfig{})
	if err := worker.Start(ctx); err != nil {
		fatalStartup(logger, "E_WORKER_START", err)
	}

	pollInterval := time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second
	staleAfter := time.Duration(cfg.Scheduler.StaleAfterMinutes) * time.Minute

	admission := scheduler.NewAdmissionProducer(scheduler.AdmissionConfig{
		Store:    st,
		Queue:    queue,
		Logger:   logger,
		Interval: pollInterval,
		Limit:    cfg.Scheduler.DispatchLimit,
	})
	admission.Start(ctx)
	defer admission.Stop()

	review := scheduler.NewReviewProducer(scheduler.ReviewConfig{
		Store:      st,
		Queue:      queue,
		Logger:     logger,
		Interval:   pollInterval,
		StaleAfter: staleAfter,
		Limit:      cfg.Scheduler.DispatchLimit,
	})
	review.Start(ctx)
	defer review.Stop()

	logger.Info("startup phase", "phase", "scheduler_started",
		"poll_interval", pollInterval, "stale_after", staleAfter)

	authToken, err := loadAuthToken(cfg.HomeDir)
	if err != nil {
		fatalStartup(logger, "E_AUTH_TOKEN_WRITE", err)
	}

	apiServer := api.NewServer(api.Config{
		Store:     st,
		Engine:    eng,
		Logger:    logger,
		AuthToken: authToken,
	})

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: apiServer.Routes(),
	}
	serverErr := make(chan error, 1)
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		fatalStartup(logger, "E_LISTENER_BIND", err)
	}
	go func() {
		logger.Info("api listening", "addr", cfg.BindAddr)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("api server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("shutdown complete")
}

// buildQueue selects the durable broker backend per config.BrokerConfig:
// "redis" dials a real Redis Streams broker, anything else (default
// "memory") uses the in-process MemoryBroker. Mirrors internal/llm/client.go's
// provider-switch shape applied to broker backend selection instead of
// LLM provider selection.
func buildQueue(cfg config.BrokerConfig, logger *slog.Logger) (broker.Queue, func(context.Context) error, error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		b := broker.New(client, logger)
		return b, b.Shutdown, nil
	case "", "memory":
		m := broker.NewMemory()
		return m, m.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unsupported broker backend %q", cfg.Backend)
	}
}

// buildToolProvider wires the MCP manager up as an llm.ToolProvider. With
// no servers configured it returns nil, which acquireTools treats as
// "no tools" for every call.
func buildToolProvider(cfg config.MCPConfig, logger *slog.Logger) llm.ToolProvider {
	if len(cfg.Servers) == 0 {
		return nil
	}
	configs := make([]mcp.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		configs = append(configs, mcp.ServerConfig{
			Name:      s.Name,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			URL:       s.URL,
			Transport: s.Transport,
			Enabled:   s.Enabled,
		})
	}
	manager := mcp.NewManager(nil, policy.Default(), logger)
	return mcp.NewProvider(manager, configs)
}

// buildNotifier selects the external session-service client: an HTTP
// client when http_base_url is configured, otherwise a client that logs
// every call and never reaches a network (matching graceful's
// degradation when an optional external integration is unconfigured).
func buildNotifier(cfg config.NotifierConfig, logger *slog.Logger) notifier.Notifier {
	if cfg.HTTPBaseURL == "" {
		return notifier.NewNoop(logger)
	}
	apiKey := ""
	if cfg.HTTPAPIKeyEnv != "" {
		apiKey = os.Getenv(cfg.HTTPAPIKeyEnv)
	}
	return notifier.NewHTTPClient(cfg.HTTPBaseURL, apiKey, logger)
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(os.Stderr, "startup failure: %s: %s\n", reasonCode, message)
	}
	os.Exit(1)
}

func loadAuthToken(homeDir string) (string, error) {
	if raw := strings.TrimSpace(os.Getenv("TASKORC_AUTH_TOKEN")); raw != "" {
		return raw, nil
	}
	tokenPath := filepath.Join(homeDir, "auth.token")
	if b, err := os.ReadFile(tokenPath); err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return "", fmt.Errorf("create home dir: %w", err)
	}
	token := uuid.NewString()
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("persist auth token: %w", err)
	}
	slog.Info("auth.token generated", "path", tokenPath)
	return token, nil
}
