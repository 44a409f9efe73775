package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/elicit/internal/api"
	"github.com/Harshitk-cp/elicit/internal/buildconfig"
	"github.com/Harshitk-cp/elicit/internal/config"
	"github.com/Harshitk-cp/elicit/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	info := buildconfig.Current()
	logger.Info("starting elicit", zap.String("version", info.Version), zap.String("commit", info.Commit))

	defs, fromFile, err := config.LoadDefinitions(config.StrategyConfigPath())
	if err != nil {
		logger.Fatal("failed to load strategy definitions", zap.Error(err))
	}
	logger.Info("strategy definitions loaded",
		zap.Bool("from_file", fromFile),
		zap.String("methodology", defs.Methodology.Name),
		zap.Strings("strategies", defs.StrategyIDs()))

	ctx := context.Background()

	var backend api.Backend
	switch driver := config.StoreDriver(); driver {
	case "memory":
		backend = api.MemoryBackend()
		logger.Warn("using in-memory store, sessions are lost on restart")
	case "postgres":
		pool := connectPostgres(ctx, logger)
		defer pool.Close()
		backend = api.PostgresBackend(pool)
	default:
		logger.Fatal("unknown STORE_DRIVER", zap.String("driver", driver))
	}

	svc, err := api.NewInterviewService(backend, api.NewClients(logger), defs, logger)
	if err != nil {
		logger.Fatal("invalid engine configuration", zap.Error(err))
	}

	app := api.NewApp(svc, backend.Ping, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	// Turns in flight get the LLM budget to finish.
	shutdownCtx, cancel := context.WithTimeout(ctx, config.LLMTimeout()+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func connectPostgres(ctx context.Context, logger *zap.Logger) *pgxpool.Pool {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	if err := store.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}
	return pool
}
