package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	redis_adapter "github.com/user/webanalysis-engine/internal/adapter/redis"
	runconfig "github.com/user/webanalysis-engine/internal/config"
	"github.com/user/webanalysis-engine/internal/delivery/http/handler"
	"github.com/user/webanalysis-engine/internal/delivery/http/router"
	"github.com/user/webanalysis-engine/internal/store"
	"github.com/user/webanalysis-engine/internal/usecase"
	"github.com/user/webanalysis-engine/pkg/config"
	"github.com/user/webanalysis-engine/pkg/logger"
	"github.com/user/webanalysis-engine/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg := config.Load()

	// --- Logger ---
	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger.Init(os.Stdout, logLevel)
	slog.Info("Logger initialized", "level", logLevel.String())

	// --- Metrics ---
	metrics.Init()
	slog.Info("Metrics initialized")

	// --- Run config defaults ---
	runDefaults, err := runconfig.LoadRunDefaults()
	if err != nil {
		slog.Error("Unable to load run config defaults", "error", err)
		os.Exit(1)
	}

	// --- Database Connections ---
	ctx := context.Background()

	// PostgreSQL
	pgConnString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	dbpool, err := pgxpool.New(ctx, pgConnString)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	slog.Info("PostgreSQL connection pool established")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Redis connection established")

	// --- Store ---
	st := store.NewPostgres(dbpool)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("Unable to apply store schema", "error", err)
		os.Exit(1)
	}

	// --- Repositories ---
	analyzedRepo := redis_adapter.NewAnalyzedRepo(rdb)
	queueRepo := redis_adapter.NewRunQueueRepo(rdb)

	// --- Use Cases ---
	tracker := usecase.NewProgressTracker()
	runManager := usecase.NewRunManager(analyzedRepo, queueRepo, st, tracker)

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(runManager, st, runDefaults)
	httpRouter := router.New(apiHandler)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httpRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Could not listen on port", "port", cfg.ServerPort, "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}
