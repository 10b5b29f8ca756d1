package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/brightleads/dmengine/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client represents a Redis client
type Client struct {
	*redis.Client
}

// New creates a new Redis client
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to Redis: %w", err)
	}

	return &Client{Client: rdb}, nil
}

// Health checks the Redis health
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// AcquireIdempotencyKey attempts to claim key via SETNX with the given TTL.
// It reports true the first time a given key is claimed within the TTL
// window and false on every subsequent call, letting callers fast-path a
// retried request without a round-trip to the system of record. The
// database unique constraint behind the call remains the source of truth;
// this is only a best-effort accelerator, so a Redis outage must never
// block the call it is guarding.
func (c *Client) AcquireIdempotencyKey(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := c.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

// CreditSourceIdempotencyKey builds the guard key for a credit grant cause.
func CreditSourceIdempotencyKey(userID, source string) string {
	return fmt.Sprintf("credit:source:%s:%s", userID, source)
}

// JobSummaryCacheKey builds the read-through cache key for a job's status
// summary, invalidated on every batch commit by the Job Runner. It is
// scoped by owner as well as job id so a cache hit can never hand back a
// job summary belonging to a different user.
func JobSummaryCacheKey(userID, jobID string) string {
	return fmt.Sprintf("job:summary:%s:%s", userID, jobID)
}

// GetJobSummary returns the cached serialized JobDTO for (userID, jobID),
// if present and unexpired.
func (c *Client) GetJobSummary(ctx context.Context, userID, jobID string) ([]byte, bool) {
	payload, err := c.Client.Get(ctx, JobSummaryCacheKey(userID, jobID)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// SetJobSummary caches a serialized JobDTO for (userID, jobID) for ttl.
// Failures are swallowed — the cache is a best-effort accelerator.
func (c *Client) SetJobSummary(ctx context.Context, userID, jobID string, payload []byte, ttl time.Duration) {
	_ = c.Client.Set(ctx, JobSummaryCacheKey(userID, jobID), payload, ttl).Err()
}

// InvalidateJobSummary evicts the cached JobDTO for (userID, jobID), called
// by the Job Runner on every batch commit and on finalize.
func (c *Client) InvalidateJobSummary(ctx context.Context, userID, jobID string) {
	_ = c.Client.Del(ctx, JobSummaryCacheKey(userID, jobID)).Err()
}
