package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/repository"
	"github.com/user/webanalysis-engine/internal/store"
)

const (
	deduplicationExpiry = 48 * time.Hour // 2 days
)

// SeedRecentlyAnalyzedError rejects a non-forced submission whose seed
// was analyzed within the dedup window; RunID identifies the run that
// already covers it.
type SeedRecentlyAnalyzedError struct {
	RunID string
}

func (e *SeedRecentlyAnalyzedError) Error() string {
	return "seed URL has been analyzed recently by run " + e.RunID + " and force is false"
}

// RunStatus is the trigger-side view of a run's lifecycle.
type RunStatus struct {
	RunID      string
	State      entity.RunState
	Progress   int
	Ready      bool
	Successful bool
	Failed     bool
	Info       string
}

// RunManager creates runs and reports their lifecycle status.
type RunManager interface {
	Start(ctx context.Context, applicationID, seedURL string, cfg entity.Config, force bool) (string, error)
	Status(ctx context.Context, runID string) (*RunStatus, error)
}

type runManagerUseCase struct {
	analyzedRepo repository.AnalyzedRepository
	queueRepo    repository.RunQueueRepository
	store        store.Store
	tracker      *ProgressTracker
}

// NewRunManager creates a new RunManager use case.
func NewRunManager(
	analyzedRepo repository.AnalyzedRepository,
	queueRepo repository.RunQueueRepository,
	st store.Store,
	tracker *ProgressTracker,
) RunManager {
	return &runManagerUseCase{
		analyzedRepo: analyzedRepo,
		queueRepo:    queueRepo,
		store:        st,
		tracker:      tracker,
	}
}

// Start validates the config, creates the run in the pending state, and
// enqueues it for the worker. Returns the new run id immediately.
func (uc *runManagerUseCase) Start(ctx context.Context, applicationID, seedURL string, cfg entity.Config, force bool) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	if force {
		if err := uc.analyzedRepo.RemoveAnalyzed(ctx, seedURL); err != nil {
			slog.Warn("Failed to remove dedup key for forced run", "seed_url", seedURL, "error", err)
			// Continue anyway, as this is not a critical failure
		}
	} else {
		recentRunID, err := uc.analyzedRepo.RecentRunID(ctx, seedURL)
		if err != nil {
			return "", err
		}
		if recentRunID != "" {
			return "", &SeedRecentlyAnalyzedError{RunID: recentRunID}
		}
	}

	run := &entity.Run{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		SeedURL:       seedURL,
		State:         entity.RunPending,
		CreatedAt:     time.Now(),
	}
	if err := uc.store.CreateRun(ctx, run, cfg); err != nil {
		return "", err
	}

	// Forced runs jump ahead of scheduled work.
	enqueue := uc.queueRepo.Push
	if force {
		enqueue = uc.queueRepo.PushFront
	}
	if err := enqueue(ctx, run.ID); err != nil {
		return "", err
	}

	if err := uc.analyzedRepo.MarkAnalyzed(ctx, seedURL, run.ID, deduplicationExpiry); err != nil {
		// Non-critical: the run is queued, the seed may just be queued
		// again before this one finishes.
		slog.Error("Failed to mark seed as analyzed after queueing", "seed_url", seedURL, "error", err)
	}

	return run.ID, nil
}

// Status reports the run's lifecycle state and an advisory progress
// percentage.
func (uc *runManagerUseCase) Status(ctx context.Context, runID string) (*RunStatus, error) {
	bundle, err := uc.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	st := &RunStatus{
		RunID: runID,
		State: bundle.Run.State,
		Info:  bundle.Run.ErrorMessage,
	}
	switch bundle.Run.State {
	case entity.RunPending:
		st.Progress = 0
	case entity.RunRunning:
		st.Progress = uc.tracker.Get(runID)
	case entity.RunCompleted:
		st.Progress = 100
		st.Ready = true
		st.Successful = true
	case entity.RunFailed:
		st.Progress = 100
		st.Ready = true
		st.Failed = true
	}
	return st, nil
}
