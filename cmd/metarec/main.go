package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Hanny658/Meta-Recommendation/internal/auth"
	"github.com/Hanny658/Meta-Recommendation/internal/config"
	"github.com/Hanny658/Meta-Recommendation/internal/conversation"
	"github.com/Hanny658/Meta-Recommendation/internal/debug"
	"github.com/Hanny658/Meta-Recommendation/internal/llm"
	"github.com/Hanny658/Meta-Recommendation/internal/metarec"
	"github.com/Hanny658/Meta-Recommendation/internal/ratelimit"
	"github.com/Hanny658/Meta-Recommendation/internal/server"
	"github.com/Hanny658/Meta-Recommendation/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config failed", "error", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, &cfg, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("metarec starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	conversations, err := conversation.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("conversation store: %w", err)
	}
	defer func() { _ = conversations.Close() }()

	var llmClient *llm.Client
	if cfg.LLMConfigured() {
		llmClient = llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
		logger.Info("llm client configured", "model", cfg.LLMModel)
	} else {
		logger.Info("llm client disabled (no api key or model)")
	}

	tasks := metarec.NewTaskManager(logger, 0)
	svc := metarec.New(logger, completer(llmClient), tasks)

	traces, err := debug.NewTraceStore(cfg.TraceDir, logger)
	if err != nil {
		return fmt.Errorf("trace store: %w", err)
	}

	registry := debug.NewRegistry()
	debug.RegisterDefaultUnits(registry, svc)
	debug.RegisterStorageUnits(registry)

	runner := debug.NewRunner(traces, svc, logger)

	loginLimiter := ratelimit.New(0.5, 10)
	defer func() { _ = loginLimiter.Close() }()

	srv := server.New(server.ServerConfig{
		Config:        cfg,
		Service:       svc,
		Conversations: conversations,
		Logger:        logger,
		Version:       version,
		Traces:        traces,
		Sessions:      debug.NewSessionStore(cfg.DebugSessionTTL),
		Registry:      registry,
		Runner:        runner,
		Explainer:     debug.NewExplainer(traces, completer(llmClient), logger),
		Inputs:        debug.NewInputGenerator(completer(llmClient), logger),
		Verifier:      auth.NewTokenVerifier(cfg.DebugAdminToken, cfg.DebugAdminTokenHash),
		LoginLimiter:  loginLimiter,
	})

	if cfg.DebugUIEnabled {
		logger.Info("debug console enabled", "cookie", cfg.DebugCookieName)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		// Drain HTTP first so no new runs start, then stop in-flight
		// polling jobs; each still records a terminal state.
		httpCtx, httpCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer httpCancel()
		if err := srv.Shutdown(httpCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}

		jobCtx, jobCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer jobCancel()
		if err := runner.Shutdown(jobCtx); err != nil {
			logger.Error("job shutdown error", "error", err)
		}
		tasks.Stop()
		return nil
	})
	return g.Wait()
}

// completer converts a possibly-nil client into the interface the
// consumers take. A plain nil *llm.Client assigned to an interface
// would compare non-nil and defeat the "no client" checks.
func completer(c *llm.Client) debug.Completer {
	if c == nil {
		return nil
	}
	return c
}
