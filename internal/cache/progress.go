package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressCache is the fast read layer for task progress and status. Entries
// carry a bounded TTL; the durable task store stays the source of truth and
// callers backfill on a miss.
type ProgressCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressCache(client *redis.Client, ttl time.Duration) *ProgressCache {
	return &ProgressCache{client: client, ttl: ttl}
}

func progressKey(taskID string) string { return "task:progress:" + taskID }
func statusKey(taskID string) string   { return "task:status:" + taskID }

func (c *ProgressCache) SetProgress(ctx context.Context, taskID string, progress int) error {
	return c.client.Set(ctx, progressKey(taskID), progress, c.ttl).Err()
}

// GetProgress returns (value, found, error). A missing key is not an error.
func (c *ProgressCache) GetProgress(ctx context.Context, taskID string) (int, bool, error) {
	val, err := c.client.Get(ctx, progressKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	progress, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return progress, true, nil
}

func (c *ProgressCache) SetStatus(ctx context.Context, taskID, status string) error {
	return c.client.Set(ctx, statusKey(taskID), status, c.ttl).Err()
}

func (c *ProgressCache) GetStatus(ctx context.Context, taskID string) (string, bool, error) {
	val, err := c.client.Get(ctx, statusKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *ProgressCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, progressKey(taskID), statusKey(taskID)).Err()
}
