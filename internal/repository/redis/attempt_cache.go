package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"access-gate/internal/client"
	"access-gate/internal/model"
	"access-gate/internal/util"
)

const (
	attemptPrefix = "gate_attempts:"
	lockPrefix    = "gate_lock:"
)

// AttemptCache caps failed verification attempts per contact hash. After
// maxAttempts failures inside window the contact is locked for window.
type AttemptCache struct {
	client      *client.RedisClient
	maxAttempts int
	window      time.Duration
}

func NewAttemptCache(client *client.RedisClient, maxAttempts int, window time.Duration) *AttemptCache {
	return &AttemptCache{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

func (c *AttemptCache) Allowed(ctx context.Context, contactHash string) (bool, error) {
	locked, err := c.client.Exists(ctx, lockPrefix+contactHash)
	if err != nil {
		util.Error("Failed to check attempt lock", zap.Error(err))
		return false, fmt.Errorf("failed to check attempt lock: %w", err)
	}
	return !locked, nil
}

// RecordFailure counts a failed attempt and sets the lock once the cap is hit.
func (c *AttemptCache) RecordFailure(ctx context.Context, contactHash string) (int, error) {
	count, err := c.client.IncrWithExpire(ctx, attemptPrefix+contactHash, c.window)
	if err != nil {
		util.Error("Failed to increment verify attempts", zap.Error(err))
		return 0, fmt.Errorf("failed to increment verify attempts: %w", err)
	}

	if int(count) >= c.maxAttempts {
		if _, err := c.client.SetNX(ctx, lockPrefix+contactHash, "locked", c.window); err != nil {
			util.Error("Failed to set attempt lock", zap.Error(err))
			return int(count), fmt.Errorf("failed to set attempt lock: %w", err)
		}
		util.Warn("Contact locked after failed verify attempts",
			zap.Int64("attempts", count),
			zap.Duration("lock", c.window))
	}

	return int(count), nil
}

func (c *AttemptCache) Attempts(ctx context.Context, contactHash string) (int, error) {
	countStr, err := c.client.Get(ctx, attemptPrefix+contactHash)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get verify attempts: %w", err)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil {
		return 0, fmt.Errorf("invalid attempt count format: %w", err)
	}
	return count, nil
}

// Reset clears the counter and lock after a successful verification.
func (c *AttemptCache) Reset(ctx context.Context, contactHash string) error {
	if err := c.client.Del(ctx, attemptPrefix+contactHash, lockPrefix+contactHash); err != nil {
		util.Error("Failed to reset verify attempts", zap.Error(err))
		return fmt.Errorf("failed to reset verify attempts: %w", err)
	}
	return nil
}

var _ model.AttemptPolicy = (*AttemptCache)(nil)
