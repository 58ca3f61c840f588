// Package main is the entrypoint for the Mentha scan orchestration server.
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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentha-app/mentha-engine/internal/analysis"
	"github.com/mentha-app/mentha-engine/internal/api"
	"github.com/mentha-app/mentha-engine/internal/api/handler"
	mw "github.com/mentha-app/mentha-engine/internal/api/middleware"
	"github.com/mentha-app/mentha-engine/internal/api/response"
	"github.com/mentha-app/mentha-engine/internal/cache"
	"github.com/mentha-app/mentha-engine/internal/config"
	"github.com/mentha-app/mentha-engine/internal/dispatch"
	"github.com/mentha-app/mentha-engine/internal/keywords"
	"github.com/mentha-app/mentha-engine/internal/provider"
	"github.com/mentha-app/mentha-engine/internal/queue"
	"github.com/mentha-app/mentha-engine/internal/scheduler"
	"github.com/mentha-app/mentha-engine/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "scheduler_enabled", cfg.Scheduler.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Redis cache and job queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	// 5. Provider registry — only engines with credentials are registered
	providers := provider.NewRegistry(cfg.Providers)
	slog.Info("providers initialized", "engines", providers.Engines())

	// 6. Store and domain services
	pgStore := store.NewPostgresStore(pool)
	keywordRegistry := keywords.NewRegistry(pgStore, cfg.Scheduler.JitterMax)

	judge, err := buildJudge(cfg.Analysis, providers)
	if err != nil {
		return fmt.Errorf("build judge: %w", err)
	}
	pipeline := analysis.NewPipeline(pgStore, jobQueue, redisCache, judge)

	sched := scheduler.New(keywordRegistry, pgStore, jobQueue, redisCache,
		cfg.Scheduler.TickInterval, cfg.Scheduler.LockTTL)

	dispatcher := dispatch.New(providers, pgStore, jobQueue, pipeline, dispatch.Config{
		Workers:        cfg.Dispatch.Workers,
		AttemptTimeout: cfg.Dispatch.AttemptTimeout,
		MaxRetries:     cfg.Dispatch.MaxRetries,
		RetryBaseDelay: cfg.Dispatch.RetryBaseDelay,
		ProviderRPS:    cfg.Dispatch.ProviderRPS,
		ProviderBurst:  cfg.Dispatch.ProviderBurst,
	})

	// 7. Background loops
	if cfg.Scheduler.Enabled {
		go sched.Run(ctx)
		slog.Info("scheduler started", "tick", cfg.Scheduler.TickInterval.String())
	}

	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- dispatcher.Run(ctx)
	}()
	slog.Info("dispatcher started", "workers", cfg.Dispatch.Workers)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  healthHandler(pgStore, redisCache),
		MetricsHandler: promhttp.Handler(),

		CreateProjectHandler: handler.NewCreateProjectHandler(pgStore),
		GetProjectHandler:    handler.NewGetProjectHandler(pgStore),
		ListProjectsHandler:  handler.NewListProjectsHandler(pgStore),

		CreateKeywordHandler: handler.NewCreateKeywordHandler(keywordRegistry),
		GetKeywordHandler:    handler.NewGetKeywordHandler(keywordRegistry),
		ListKeywordsHandler:  handler.NewListKeywordsHandler(keywordRegistry),
		DeleteKeywordHandler: handler.NewDeleteKeywordHandler(keywordRegistry),

		TriggerScanHandler:  handler.NewTriggerScanHandler(sched),
		GetScanJobHandler:   handler.NewGetScanJobHandler(pgStore),
		JobResultHandler:    handler.NewJobResultHandler(pgStore),
		LatestResultHandler: handler.NewLatestResultHandler(pgStore, redisCache),
		ListResultsHandler:  handler.NewListResultsHandler(pgStore),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Workers stop once ctx is cancelled; give them the same drain window.
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		slog.Warn("dispatcher did not drain before deadline")
	}

	slog.Info("server stopped gracefully")
	return nil
}

// buildJudge selects the hallucination-judge strategy from config.
func buildJudge(cfg config.AnalysisConfig, providers *provider.Registry) (analysis.Judge, error) {
	switch cfg.Judge {
	case "llm":
		p, err := providers.Get(cfg.JudgeEngine)
		if err != nil {
			return nil, fmt.Errorf("judge engine %q: %w", cfg.JudgeEngine, err)
		}
		return analysis.NewLLMJudge(p), nil
	default:
		return analysis.HeuristicJudge{}, nil
	}
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
