package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/bomdiff-engine/pkg/audit"
	"github.com/ekaya-inc/bomdiff-engine/pkg/auth"
	"github.com/ekaya-inc/bomdiff-engine/pkg/config"
	"github.com/ekaya-inc/bomdiff-engine/pkg/database"
	"github.com/ekaya-inc/bomdiff-engine/pkg/handlers"
	"github.com/ekaya-inc/bomdiff-engine/pkg/logging"
	"github.com/ekaya-inc/bomdiff-engine/pkg/middleware"
	"github.com/ekaya-inc/bomdiff-engine/pkg/repositories"
	"github.com/ekaya-inc/bomdiff-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("job_store", cfg.JobStore.Backend),
		zap.Bool("events_persist", cfg.Events.Persist),
		zap.Bool("diff_engine_v1", cfg.Features.DiffEngineV1.Enabled()),
		zap.Bool("diff_progressive_api_v1", cfg.Features.DiffProgressiveAPIV1.Enabled()))

	// Job store
	var store services.JobStore
	switch cfg.JobStore.Backend {
	case config.JobStoreRedis:
		redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer closeRedis(redisClient, logger)
		store = services.NewRedisJobStore(redisClient, cfg.JobStore.TTL, logger)
		logger.Info("Using Redis job store",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)),
			zap.Duration("ttl", cfg.JobStore.TTL))
	default:
		store = services.NewMemoryJobStore()
		logger.Info("Using in-memory job store")
	}

	// Event sinks: always log, optionally persist
	sinks := services.MultiEventSink{services.NewLogEventSink(logger)}
	if cfg.Events.Persist {
		db, err := openEventDatabase(ctx, &cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		repoSink := services.NewRepositoryEventSink(
			repositories.NewDiffEventRepository(),
			database.NewTenantScopeProvider(db),
			logger,
			cfg.Events.BufferSize,
		)
		// Runs before db.Close so queued events are flushed first.
		defer repoSink.Close()
		sinks = append(sinks, repoSink)
	}

	// Services
	diffJobService := services.NewDiffJobService(
		store,
		nil, // revision uploads are not hosted by this service
		sinks,
		audit.NewSecurityAuditor(logger),
		logger,
	)

	// Handlers
	mux := http.NewServeMux()
	authMiddleware := auth.NewMiddleware(cfg.Identity.TenantHeader, cfg.Identity.UserHeader, logger)

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDiffJobHandler(diffJobService, cfg.Features, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewExportHandler(diffJobService, logger).RegisterRoutes(mux, authMiddleware)

	addr := fmt.Sprintf("%s:%s", cfg.BindAddr, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting bomdiff-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case s := <-sigc:
		logger.Info("Shutdown signal received", zap.String("signal", s.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
	return nil
}

// openEventDatabase connects to PostgreSQL and applies migrations for the event log.
func openEventDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	connStr := cfg.ConnectionString()

	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return nil, err
	}

	return database.NewConnection(ctx, database.ConfigFromSettings(cfg), logger)
}

func closeRedis(client *redis.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("Failed to close Redis client", zap.Error(err))
	}
}
