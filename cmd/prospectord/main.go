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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	anthropicadapter "github.com/govambam/prospector/internal/adapter/driven/anthropic"
	githubadapter "github.com/govambam/prospector/internal/adapter/driven/github"
	sqliteadapter "github.com/govambam/prospector/internal/adapter/driven/sqlite"
	httphandler "github.com/govambam/prospector/internal/adapter/driving/http"
	"github.com/govambam/prospector/internal/application"
	"github.com/govambam/prospector/internal/config"
	"github.com/govambam/prospector/internal/domain/port/driven"
	"github.com/govambam/prospector/internal/repocache"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"repo_cache_dir", cfg.RepoCacheDir,
		"cutoff_date", cfg.CutoffDate.Format("2006-01-02"),
		"poll_interval", cfg.PollInterval,
		"clone_concurrency", cfg.CloneLimit,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores.
	queueStore := sqliteadapter.NewQueueRepo(db)
	forkStore := sqliteadapter.NewForkRepo(db)
	prStore := sqliteadapter.NewSimulatedPRRepo(db)
	metricsStore := sqliteadapter.NewMetricsRepo(db)

	// 6. Create GitHub client (nil if no credentials configured).
	var ghClient driven.GitHubClient
	if cfg.HasGitHubCredentials() {
		ghClient = githubadapter.NewClient(cfg.GitHubToken, cfg.GitHubUsername)
		slog.Info("github client created", "username", cfg.GitHubUsername)
	} else {
		slog.Warn("no github credentials configured, queue execution and discovery disabled")
	}

	// 7. Create repo cache with its lock manager and clone semaphore.
	cache := repocache.NewCache(
		cfg.RepoCacheDir,
		cfg.GitHubToken,
		cfg.GitHubUsername,
		repocache.NewLockManager(),
		repocache.NewSemaphore(cfg.CloneLimit),
	)

	// 8. Create LLM judge (nil if no API key; advanced mode degrades to fast).
	var judge driven.BugJudge
	if cfg.AnthropicAPIKey != "" {
		j, err := anthropicadapter.NewJudge(cfg.AnthropicAPIKey)
		if err != nil {
			return err
		}
		judge = j
		slog.Info("anthropic judge created")
	} else {
		slog.Warn("no anthropic api key configured, advanced discovery degrades to fast scoring")
	}

	// 9. Create and start the queue processor.
	processor := application.NewProcessor(queueStore, forkStore, prStore, ghClient, cache, cfg.PollInterval)
	go processor.Start(ctx)

	// 10. Create application services.
	queueSvc := application.NewQueueService(queueStore, queueStore, cfg.GitHubUsername, processor.Kick)
	discoverySvc := application.NewDiscoveryService(ghClient, judge, metricsStore, cfg.CutoffDate)

	// 11. Create HTTP handler and register routes.
	apiHandler := httphandler.NewHandler(queueSvc, discoverySvc, cache, forkStore, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second, // Discovery runs can be slow.
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("prospector started", "listen_addr", cfg.ListenAddr)

	// 12. Wait for shutdown signal, then drain the HTTP server.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
