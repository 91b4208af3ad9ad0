package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n calls with a transient error, then delegates.
type flakyStore struct {
	inner     Store
	remaining int
	calls     int
}

func (f *flakyStore) fail() error {
	f.calls++
	if f.remaining > 0 {
		f.remaining--
		return &StorageError{Op: "save", Err: errors.New("database is locked")}
	}
	return nil
}

func (f *flakyStore) Save(ctx context.Context, req SaveRequest) (Checkpoint, error) {
	if err := f.fail(); err != nil {
		return Checkpoint{}, err
	}
	return f.inner.Save(ctx, req)
}

func (f *flakyStore) LoadLatest(ctx context.Context, sessionID string) (Checkpoint, error) {
	if err := f.fail(); err != nil {
		return Checkpoint{}, err
	}
	return f.inner.LoadLatest(ctx, sessionID)
}

func (f *flakyStore) Load(ctx context.Context, sessionID string, sequence int64) (Checkpoint, error) {
	if err := f.fail(); err != nil {
		return Checkpoint{}, err
	}
	return f.inner.Load(ctx, sessionID, sequence)
}

func TestRetryingStore_RecoversFromTransientFailures(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore(), remaining: 2}
	store := WithRetry(flaky, RetryConfig{InitialInterval: time.Millisecond, MaxElapsedTime: time.Second})

	cp, err := store.Save(context.Background(), SaveRequest{SessionID: "s1", Status: StatusRunning})
	require.NoError(t, err)
	require.Equal(t, int64(1), cp.Sequence)
	require.Equal(t, 3, flaky.calls, "two failures then one success")
}

func TestRetryingStore_GivesUpAfterMaxElapsed(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore(), remaining: 1 << 30}
	store := WithRetry(flaky, RetryConfig{InitialInterval: time.Millisecond, MaxElapsedTime: 20 * time.Millisecond})

	_, err := store.Save(context.Background(), SaveRequest{SessionID: "s1", Status: StatusRunning})
	require.Error(t, err)
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
}

func TestRetryingStore_NotFoundIsNotRetried(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore()}
	store := WithRetry(flaky, RetryConfig{InitialInterval: time.Millisecond, MaxElapsedTime: time.Second})

	_, err := store.LoadLatest(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, flaky.calls, "not-found must not be retried")
}

func TestRetryingStore_ContextCancellation(t *testing.T) {
	flaky := &flakyStore{inner: NewMemoryStore(), remaining: 1 << 30}
	store := WithRetry(flaky, RetryConfig{InitialInterval: 5 * time.Millisecond, MaxElapsedTime: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	_, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning})
	require.Error(t, err)
}
