package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const runQueueKey = "analysis:runs"

// RunQueueRepoImpl backs the RunQueueRepository interface with a Redis
// list: new runs enter on the left, the worker pops from the right, and
// forced runs enter on the right so they are popped next.
type RunQueueRepoImpl struct {
	client *redis.Client
}

// NewRunQueueRepo creates a new instance of RunQueueRepoImpl.
func NewRunQueueRepo(client *redis.Client) *RunQueueRepoImpl {
	return &RunQueueRepoImpl{client: client}
}

// Push adds a run id at the back of the queue.
func (r *RunQueueRepoImpl) Push(ctx context.Context, runID string) error {
	return r.client.LPush(ctx, runQueueKey, runID).Err()
}

// PushFront adds a run id at the front of the queue, ahead of waiting
// runs. Forced re-analyses take this path.
func (r *RunQueueRepoImpl) PushFront(ctx context.Context, runID string) error {
	return r.client.RPush(ctx, runQueueKey, runID).Err()
}

// Pop removes and returns the run id at the front of the queue. Returns
// redis.Nil when the queue is empty.
func (r *RunQueueRepoImpl) Pop(ctx context.Context) (string, error) {
	return r.client.RPop(ctx, runQueueKey).Result()
}

// Size returns the current number of queued runs.
func (r *RunQueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, runQueueKey).Result()
}
