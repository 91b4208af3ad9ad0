package checkpoint

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/neopilot-ai/neopilot/internal/contract"
)

func TestMemoryStore_SaveAllocatesSequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning, Goal: "do the thing"})
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Sequence)

	second, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusPaused})
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Sequence)

	// A different session gets its own counter.
	other, err := store.Save(ctx, SaveRequest{SessionID: "s2", Status: StatusRunning})
	require.NoError(t, err)
	require.Equal(t, int64(1), other.Sequence)
}

func TestMemoryStore_LoadLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.LoadLatest(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning})
	require.NoError(t, err)
	_, err = store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusFinished, Goal: "done"})
	require.NoError(t, err)

	latest, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(2), latest.Sequence)
	require.Equal(t, StatusFinished, latest.Status)
	require.Equal(t, "done", latest.Goal)
}

func TestMemoryStore_LoadBySequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning})
	require.NoError(t, err)
	saved, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusPaused})
	require.NoError(t, err)

	got, err := store.Load(ctx, "s1", saved.Sequence)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)

	_, err = store.Load(ctx, "s1", 99)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Load(ctx, "s1", 0)
	require.ErrorIs(t, err, ErrNotFound)
	// Sequences never cross sessions.
	_, err = store.Load(ctx, "s2", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SaveCopiesState(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	state := []byte(`{"step":1}`)
	saved, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning, State: state})
	require.NoError(t, err)

	state[0] = 'X'
	got, err := store.Load(ctx, "s1", saved.Sequence)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"step":1}`), got.State)
}

func TestMemoryStore_StoresErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	errs := []contract.WorkflowError{{Kind: "tool_failure", Message: "git exited 128"}}
	saved, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusFailed, Errors: errs})
	require.NoError(t, err)
	require.Equal(t, errs, saved.Errors)

	latest, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, errs, latest.Errors)
}

func TestMemoryStore_ConcurrentSavesGapFree(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Save(ctx, SaveRequest{SessionID: "s1", Status: StatusRunning})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for seq := int64(1); seq <= n; seq++ {
		cp, err := store.Load(ctx, "s1", seq)
		require.NoError(t, err)
		require.False(t, seen[cp.Sequence], "sequence %d allocated twice", cp.Sequence)
		seen[cp.Sequence] = true
	}
	latest, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(n), latest.Sequence)
}

// Property: for any interleaving of saves across sessions, each session's
// sequences are 1..n with no gaps and every load round-trips its save.
func TestMemoryStore_SequencesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		sessions := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c"}), 1, 40).Draw(t, "sessions")
		counts := make(map[string]int64)
		for i, sid := range sessions {
			cp, err := store.Save(ctx, SaveRequest{
				SessionID: sid,
				Status:    StatusRunning,
				Goal:      rapid.StringN(0, 16, 16).Draw(t, "goal"),
			})
			require.NoError(t, err)
			counts[sid]++
			require.Equal(t, counts[sid], cp.Sequence, "save %d for session %s", i, sid)
		}

		for sid, n := range counts {
			latest, err := store.LoadLatest(ctx, sid)
			require.NoError(t, err)
			require.Equal(t, n, latest.Sequence)
			for seq := int64(1); seq <= n; seq++ {
				got, err := store.Load(ctx, sid, seq)
				require.NoError(t, err)
				require.Equal(t, seq, got.Sequence)
				require.Equal(t, sid, got.SessionID)
			}
		}
	})
}
