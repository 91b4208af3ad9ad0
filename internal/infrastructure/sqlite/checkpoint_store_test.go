package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/infrastructure/migrations"
)

func testStore(t *testing.T) checkpoint.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunMigrations(db))
	return newCheckpointStore(db)
}

func TestCheckpointStore_SaveAllocatesSequence(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusRunning, Goal: "migrate the db"})
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Sequence)

	second, err := store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusPaused})
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Sequence)

	other, err := store.Save(ctx, checkpoint.SaveRequest{SessionID: "s2", Status: checkpoint.StatusRunning})
	require.NoError(t, err)
	require.Equal(t, int64(1), other.Sequence, "sessions have independent counters")
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	errs := []contract.WorkflowError{{Kind: "tool_failure", Message: "command exited 1"}}
	saved, err := store.Save(ctx, checkpoint.SaveRequest{
		SessionID: "s1",
		Status:    checkpoint.StatusFailed,
		State:     []byte(`{"phase":"review"}`),
		Goal:      "fix the flake",
		Errors:    errs,
	})
	require.NoError(t, err)

	got, err := store.Load(ctx, "s1", saved.Sequence)
	require.NoError(t, err)
	require.Equal(t, "s1", got.SessionID)
	require.Equal(t, checkpoint.StatusFailed, got.Status)
	require.Equal(t, []byte(`{"phase":"review"}`), got.State)
	require.Equal(t, "fix the flake", got.Goal)
	require.Equal(t, errs, got.Errors)
	require.False(t, got.CreatedAt.IsZero())
}

func TestCheckpointStore_LoadLatest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.LoadLatest(ctx, "missing")
	require.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusRunning})
	require.NoError(t, err)
	_, err = store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusFinished})
	require.NoError(t, err)

	latest, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), latest.Sequence)
	require.Equal(t, checkpoint.StatusFinished, latest.Status)
}

func TestCheckpointStore_LoadWrongSession(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusRunning})
	require.NoError(t, err)

	_, err = store.Load(ctx, "s2", 1)
	require.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestCheckpointStore_ConcurrentSaves(t *testing.T) {
	// Concurrency needs a shared on-disk database; :memory: is per-connection.
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := checkpoint.WithRetry(db.CheckpointStore(), checkpoint.DefaultRetryConfig())

	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, checkpoint.SaveRequest{SessionID: "s1", Status: checkpoint.StatusRunning})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	latest, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(n), latest.Sequence)
	for seq := int64(1); seq <= n; seq++ {
		_, err := store.Load(ctx, "s1", seq)
		require.NoError(t, err, "sequence %d should exist with no gaps", seq)
	}
}

func TestNewDB_CreatesBackupBeforeMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopen: the existing file must be backed up first.
	db, err = NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.FileExists(t, path+".bak")
}
