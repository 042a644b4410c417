package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vidsync/internal/config"
)

// withRetry runs fn up to cfg.MaxAttempts times with doubling backoff
// between attempts. Errors matching permanent are surfaced immediately
// without consuming the attempt budget.
func withRetry[T any](
	ctx context.Context,
	cfg config.RetryConfig,
	logger *slog.Logger,
	op string,
	permanent func(error) bool,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var result T
	var err error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if permanent != nil && permanent(err) {
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		backoff := calculateBackoff(cfg, attempt)
		logger.Warn("request failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return result, fmt.Errorf("%s: after %d attempts: %w", op, cfg.MaxAttempts, err)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	backoff := cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}
	return backoff
}

// chunk partitions items into consecutive slices of at most size.
func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	var batches [][]T
	for size < len(items) {
		batches = append(batches, items[:size])
		items = items[size:]
	}
	return append(batches, items)
}

// shouldSync is the polling gate shared by both engines: due when no
// successful pass has happened yet or the interval has elapsed.
func shouldSync(lastSyncedAt *time.Time, interval time.Duration, now time.Time) bool {
	if lastSyncedAt == nil {
		return true
	}
	return now.Sub(*lastSyncedAt) >= interval
}
