package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kishlaychandan/feedback-backend/internal/audit"
	"github.com/kishlaychandan/feedback-backend/internal/config"
	"github.com/kishlaychandan/feedback-backend/internal/feedback"
	"github.com/kishlaychandan/feedback-backend/internal/httpapi"
	"github.com/kishlaychandan/feedback-backend/internal/llm"
	"github.com/kishlaychandan/feedback-backend/internal/mqtt"
	"github.com/kishlaychandan/feedback-backend/internal/observability"
	"github.com/kishlaychandan/feedback-backend/internal/ratelimit"
	"github.com/kishlaychandan/feedback-backend/internal/reconcile"
	"github.com/kishlaychandan/feedback-backend/internal/respond"
	"github.com/kishlaychandan/feedback-backend/internal/retention"
	"github.com/kishlaychandan/feedback-backend/internal/store"
)

const serviceName = "feedback-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	observability.SetupLogging(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, promHandler, tracer, err := observability.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("observability setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry()

	db, err := store.OpenPostgres(cfg.DatabaseURL())
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db, cfg.Zones)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}
	slog.Info("zone map loaded", "zones", len(cfg.Zones))

	mq, err := mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.MQTTPublishTimeout)
	if err != nil {
		slog.Error("mqtt connect failed", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	backend := newBackend(ctx, cfg)
	adapter, err := llm.NewAdapter(backend, cfg.LLMTimeout)
	if err != nil {
		slog.Error("llm adapter setup failed", "error", err)
		os.Exit(1)
	}
	slog.Info("generative backend", "provider", cfg.LLMProvider, "backend", adapter.Name(), "available", adapter.Available())

	var sink audit.Sink = audit.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		ks := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		defer func() { _ = ks.Close() }()
		sink = ks
		slog.Info("audit stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAuditTopic)
	}

	svc := feedback.NewService(
		adapter,
		repo,
		reconcile.New(mqtt.NewDispatcher(mq, cfg.MQTTTopicPrefix)),
		respond.New(adapter),
		feedback.Options{ChatWritesEnabled: cfg.ChatWritesEnabled, Audit: sink},
	)

	var limiter *ratelimit.RateLimiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, rate limiter will fail open", "addr", cfg.RedisAddr, "error", err)
		}
		limiter = ratelimit.New(rdb, "feedback", ratelimit.LimiterConfig{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst})
	}

	if cfg.RetentionDays > 0 {
		job, err := retention.New(repo, cfg.RetentionDays, cfg.RetentionCron)
		if err != nil {
			slog.Error("retention setup failed", "error", err)
			os.Exit(1)
		}
		if err := job.Start(); err != nil {
			slog.Error("invalid retention schedule", "schedule", cfg.RetentionCron, "error", err)
			os.Exit(1)
		}
		defer job.Stop()
	}

	h := httpapi.NewHandler(svc, repo, httpapi.Options{
		LLMProvider:  cfg.LLMProvider,
		LLMAvailable: adapter.Available(),
		Transport:    mq,
	})
	router := httpapi.NewRouter(h, httpapi.RouterOptions{Limiter: limiter, Tracer: tracer, Metrics: promHandler})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("feedback-service listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	cancel()
}

// newBackend picks the generative backend. A provider that cannot be built
// yields nil, which makes every request take the deterministic path.
func newBackend(ctx context.Context, cfg *config.Config) llm.Backend {
	switch cfg.LLMProvider {
	case "gemini":
		b, err := llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
		if err != nil {
			slog.Warn("gemini backend unavailable", "error", err)
			return nil
		}
		return b
	case "ollama":
		c := llm.NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, cfg.OllamaContextLength)
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if ok, err := c.Available(checkCtx); !ok {
			slog.Warn("ollama not reachable at startup", "host", cfg.OllamaHost, "error", err)
		}
		return c
	}
	return nil
}
