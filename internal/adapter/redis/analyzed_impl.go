package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/webanalysis-engine/pkg/utils"
)

const analyzedSeedPrefix = "analyzed:"

// AnalyzedRepoImpl backs the AnalyzedRepository interface with expiring
// Redis keys, one per seed URL hash. The key's value is the run id that
// analyzed the seed, so the dedup check can report which run already
// covers it.
type AnalyzedRepoImpl struct {
	client *redis.Client
}

// NewAnalyzedRepo creates a new instance of AnalyzedRepoImpl.
func NewAnalyzedRepo(client *redis.Client) *AnalyzedRepoImpl {
	return &AnalyzedRepoImpl{client: client}
}

func (r *AnalyzedRepoImpl) generateKey(seedURL string) string {
	return fmt.Sprintf("%s%s", analyzedSeedPrefix, utils.HashURL(seedURL))
}

// MarkAnalyzed records runID against the seed's dedup key with an
// expiry. SETEX is atomic.
func (r *AnalyzedRepoImpl) MarkAnalyzed(ctx context.Context, seedURL, runID string, expiry time.Duration) error {
	return r.client.SetEx(ctx, r.generateKey(seedURL), runID, expiry).Err()
}

// RecentRunID returns the run id stored against the seed, or "" when the
// dedup window has passed.
func (r *AnalyzedRepoImpl) RecentRunID(ctx context.Context, seedURL string) (string, error) {
	val, err := r.client.Get(ctx, r.generateKey(seedURL)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// RemoveAnalyzed clears the dedup mark, used for force re-analysis.
func (r *AnalyzedRepoImpl) RemoveAnalyzed(ctx context.Context, seedURL string) error {
	return r.client.Del(ctx, r.generateKey(seedURL)).Err()
}
