package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/config"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/db"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/importer"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/logging"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/repository"
	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"worker_tick", cfg.Worker.TickInterval,
		"stale_after", cfg.Worker.StaleAfter,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	// Connect to database
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	// Apply schema migrations
	if err := db.Migrate(cfg.Database.URL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("schema migrations applied")

	// Wire repositories and the import pipeline
	catalogRepo := repository.NewCatalogRepository(pool)
	priceRepo := repository.NewSupplierPriceRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	errorRepo := repository.NewErrorRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)

	scanner := importer.NewScanner(catalogRepo, priceRepo)
	reconciler := importer.NewReconciler(priceRepo)
	post := importer.NewPostProcessor(catalogRepo)

	worker := importer.NewWorker(
		jobRepo, historyRepo, errorRepo, templateRepo,
		scanner, reconciler, post,
		importer.WithStaleAfter(cfg.Worker.StaleAfter),
		importer.WithErrorPreview(cfg.Import.ErrorPreview),
	)

	service := importer.NewService(jobRepo, historyRepo, errorRepo, templateRepo, worker)
	service.SetMaxFileSize(cfg.Import.MaxFileSize)

	// Create server with config
	rateLimit, importLimit := 0, 0
	if cfg.Rate.Enabled {
		rateLimit = cfg.Rate.RequestsPerMinute
		importLimit = cfg.Rate.ImportLimit
	}
	server := web.NewServer(service, worker, web.Options{
		RequestTimeout:  cfg.Server.RequestTimeout,
		RateLimit:       rateLimit,
		ImportRateLimit: importLimit,
		MaxBodySize:     cfg.Import.MaxFileSize,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	// Start the queue worker ticker
	go worker.Run(jobCtx, cfg.Worker.TickInterval)

	// Periodic purge of finished jobs past the retention window
	go func() {
		ticker := time.NewTicker(cfg.Worker.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if _, err := service.PurgeOldJobs(jobCtx, cfg.Worker.PurgeRetention); err != nil {
					slog.Error("job purge failed", "error", err)
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop the worker ticker; an in-flight run finishes on its own
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server
	slog.Info("server starting", "addr", cfg.Server.Addr())
	err = server.Start(cfg.Server.Addr(),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	if err != nil && err != http.ErrServerClosed {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
