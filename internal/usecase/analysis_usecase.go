package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/fetcher"
	"github.com/user/webanalysis-engine/internal/frontier"
	"github.com/user/webanalysis-engine/internal/repository"
	"github.com/user/webanalysis-engine/internal/store"
	"github.com/user/webanalysis-engine/internal/validator"
	"github.com/user/webanalysis-engine/pkg/logger"
	"github.com/user/webanalysis-engine/pkg/metrics"
)

// Progress milestones reported at phase boundaries.
const (
	progressStarted   = 5
	progressCrawled   = 60
	progressValidated = 85
)

// Analyzer drives whole runs: crawl, validate, persist.
type Analyzer interface {
	// ProcessRunFromQueue pops one run id from the queue and executes it.
	// An empty queue is a normal state, not an error.
	ProcessRunFromQueue(ctx context.Context) error
	// Execute runs the full pipeline for one run id.
	Execute(ctx context.Context, runID string) error
}

type analysisUseCase struct {
	queueRepo repository.RunQueueRepository
	store     store.Store
	tracker   *ProgressTracker
}

// NewAnalyzer creates a new instance of the analysis use case.
func NewAnalyzer(queueRepo repository.RunQueueRepository, st store.Store, tracker *ProgressTracker) Analyzer {
	return &analysisUseCase{
		queueRepo: queueRepo,
		store:     st,
		tracker:   tracker,
	}
}

func (uc *analysisUseCase) ProcessRunFromQueue(ctx context.Context) error {
	runID, err := uc.queueRepo.Pop(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Queue is empty, which is a normal state.
			return nil
		}
		return fmt.Errorf("failed to pop run from queue: %w", err)
	}

	slog.Info("Processing run from queue", "run_id", runID)
	return uc.Execute(ctx, runID)
}

// Execute loads the run's config, crawls from the seed, validates the
// edge set, and persists all artifacts. Fetch- and validation-level
// failures are materialized as typed fields on the records; only
// invariant violations, cancellation, and storage failures transition
// the run to failed.
func (uc *analysisUseCase) Execute(ctx context.Context, runID string) error {
	bundle, err := uc.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run, cfg := bundle.Run, bundle.Config

	if err := uc.store.SetRunState(ctx, runID, entity.RunRunning, ""); err != nil {
		return fmt.Errorf("failed to mark run %s running: %w", runID, err)
	}
	uc.tracker.Set(runID, progressStarted)

	startTime := time.Now()
	domain := "unknown"
	if parsed, perr := url.Parse(run.SeedURL); perr == nil && parsed.Hostname() != "" {
		domain = parsed.Hostname()
	}

	f := fetcher.New(fetcher.Options{
		UserAgent:      cfg.UserAgent,
		Timeout:        cfg.RequestTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		MaxConcurrency: cfg.MaxConcurrentRequests,
	})

	runLogger := logger.ForRun(runID)

	crawl, err := frontier.New(runID, cfg, f, runLogger).Crawl(ctx, run.SeedURL)
	if err != nil {
		return uc.fail(ctx, runID, err)
	}
	uc.tracker.Set(runID, progressCrawled)
	metrics.PagesAnalyzedTotal.Add(float64(len(crawl.Pages)))

	edges := validator.New(cfg, runLogger).Validate(ctx, crawl.Edges, crawl.StatusCodes)
	if ctx.Err() != nil {
		return uc.fail(ctx, runID, ctx.Err())
	}
	uc.tracker.Set(runID, progressValidated)
	metrics.LinksValidatedTotal.Add(float64(len(edges)))

	artifacts := store.Artifacts{
		Pages:   crawl.Pages,
		Edges:   edges,
		Maps:    crawl.Maps,
		Bodies:  crawl.Bodies,
		Fetched: crawl.Fetched,
	}

	// Store writes are retried once; a second failure fails the run and
	// the transaction rollback leaves the pre-run state.
	if err := uc.store.PersistRun(ctx, runID, artifacts); err != nil {
		var inv *entity.ErrInvariantViolation
		if errors.As(err, &inv) {
			return uc.fail(ctx, runID, err)
		}
		slog.Warn("Persist failed, retrying once", "run_id", runID, "error", err)
		if err := uc.store.PersistRun(ctx, runID, artifacts); err != nil {
			return uc.fail(ctx, runID, fmt.Errorf("persist failed after retry: %w", err))
		}
	}

	if err := uc.store.SetRunState(ctx, runID, entity.RunCompleted, ""); err != nil {
		return uc.fail(ctx, runID, err)
	}
	uc.tracker.Set(runID, 100)
	uc.tracker.Forget(runID)

	duration := time.Since(startTime)
	metrics.RunDuration.WithLabelValues(domain).Observe(duration.Seconds())
	metrics.RunsTotal.WithLabelValues("success", "").Inc()
	runLogger.Info("Run completed", "pages", len(crawl.Pages), "links", len(edges), "duration_ms", duration.Milliseconds())
	return nil
}

func (uc *analysisUseCase) fail(ctx context.Context, runID string, cause error) error {
	errorType := "internal"
	msg := cause.Error()
	switch {
	case errors.Is(cause, context.Canceled):
		errorType = "cancelled"
		msg = "cancelled"
	case errors.Is(cause, context.DeadlineExceeded):
		errorType = "deadline"
	}
	var inv *entity.ErrInvariantViolation
	if errors.As(cause, &inv) {
		errorType = "invariant"
	}
	metrics.RunsTotal.WithLabelValues("failure", errorType).Inc()

	// Use a fresh context: the run's own context may already be dead.
	stateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.store.SetRunState(stateCtx, runID, entity.RunFailed, msg); err != nil {
		slog.Error("Failed to record run failure", "run_id", runID, "error", err)
	}
	uc.tracker.Forget(runID)

	slog.Error("Run failed", "run_id", runID, "error", cause, "error_type", errorType)
	return cause
}
