package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds the retry loop around a backing store.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig matches the persistence defaults in the service config.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 50 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
	}
}

// RetryingStore decorates a Store with bounded exponential backoff on
// transient backend failures. ErrNotFound and context cancellation are
// never retried.
type RetryingStore struct {
	inner Store
	cfg   RetryConfig
}

// WithRetry wraps store so each operation survives transient failures.
func WithRetry(store Store, cfg RetryConfig) *RetryingStore {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = DefaultRetryConfig().MaxElapsedTime
	}
	return &RetryingStore{inner: store, cfg: cfg}
}

func (r *RetryingStore) Save(ctx context.Context, req SaveRequest) (Checkpoint, error) {
	return r.run(ctx, func() (Checkpoint, error) {
		return r.inner.Save(ctx, req)
	})
}

func (r *RetryingStore) LoadLatest(ctx context.Context, sessionID string) (Checkpoint, error) {
	return r.run(ctx, func() (Checkpoint, error) {
		return r.inner.LoadLatest(ctx, sessionID)
	})
}

func (r *RetryingStore) Load(ctx context.Context, sessionID string, sequence int64) (Checkpoint, error) {
	return r.run(ctx, func() (Checkpoint, error) {
		return r.inner.Load(ctx, sessionID, sequence)
	})
}

func (r *RetryingStore) run(ctx context.Context, op func() (Checkpoint, error)) (Checkpoint, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval

	return backoff.Retry(ctx, func() (Checkpoint, error) {
		cp, err := op()
		if err != nil && errors.Is(err, ErrNotFound) {
			return Checkpoint{}, backoff.Permanent(err)
		}
		return cp, err
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(r.cfg.MaxElapsedTime))
}
