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
	"github.com/redis/go-redis/v9"

	redis_adapter "github.com/user/webanalysis-engine/internal/adapter/redis"
	"github.com/user/webanalysis-engine/internal/store"
	"github.com/user/webanalysis-engine/internal/usecase"
	"github.com/user/webanalysis-engine/pkg/config"
	"github.com/user/webanalysis-engine/pkg/logger"
	"github.com/user/webanalysis-engine/pkg/metrics"
)

const pollInterval = 2 * time.Second

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}
	logger.Init(os.Stdout, logLevel)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgConnString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	dbpool, err := pgxpool.New(ctx, pgConnString)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}

	st := store.NewPostgres(dbpool)
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("Unable to apply store schema", "error", err)
		os.Exit(1)
	}

	queueRepo := redis_adapter.NewRunQueueRepo(rdb)
	analyzer := usecase.NewAnalyzer(queueRepo, st, usecase.NewProgressTracker())

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		slog.Info("Shutdown signal received")
		cancel()
	}()

	slog.Info("Worker started", "poll_interval", pollInterval.String())
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return
		case <-ticker.C:
			if size, err := queueRepo.Size(ctx); err == nil {
				metrics.RunsInQueue.Set(float64(size))
			}
			if err := analyzer.ProcessRunFromQueue(ctx); err != nil {
				slog.Error("Run processing failed", "error", err)
			}
		}
	}
}
