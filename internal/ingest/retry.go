package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// RetryPolicy bounds how transient failures are retried: a fixed attempt
// budget with exponentially doubling backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// Do runs op until it succeeds, returns a non-retryable error, or exhausts
// the attempt budget. Only transient failures (embedding unavailable,
// timeout) are retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == attempts-1 {
			return lastErr
		}
		backoff := p.BaseBackoff * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func retryable(err error) bool {
	return errors.Is(err, models.ErrEmbeddingUnavailable) || errors.Is(err, models.ErrTimeout)
}
