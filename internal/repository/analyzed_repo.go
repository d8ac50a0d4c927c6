package repository

import (
	"context"
	"time"
)

// AnalyzedRepository deduplicates recently analyzed seed URLs across runs.
// The dedup mark carries the run id that analyzed the seed, so a rejected
// re-submission can point the caller at the existing results.
type AnalyzedRepository interface {
	// MarkAnalyzed marks a seed URL as analyzed by runID, expiring after
	// the dedup window.
	MarkAnalyzed(ctx context.Context, seedURL, runID string, expiry time.Duration) error
	// RecentRunID returns the run id that analyzed the seed within the
	// dedup window, or "" if none.
	RecentRunID(ctx context.Context, seedURL string) (string, error)
	// RemoveAnalyzed clears the dedup mark, used for force re-analysis.
	RemoveAnalyzed(ctx context.Context, seedURL string) error
}
