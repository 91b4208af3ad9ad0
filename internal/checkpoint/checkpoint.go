// Package checkpoint defines the append-only store of workflow progress
// snapshots. The serialized state blob is opaque here; it is produced and
// consumed by the decision layer. What this package guarantees is ordering:
// per-session sequence numbers are strictly increasing, gap-free, and
// allocated atomically under concurrent saves.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/neopilot-ai/neopilot/internal/contract"
)

// Checkpoint statuses, part of the persisted vocabulary shared with clients.
const (
	StatusCreated              = "CREATED"
	StatusRunning              = "RUNNING"
	StatusPaused               = "PAUSED"
	StatusFinished             = "FINISHED"
	StatusFailed               = "FAILED"
	StatusStopped              = "STOPPED"
	StatusInputRequired        = "INPUT_REQUIRED"
	StatusPlanApprovalRequired = "PLAN_APPROVAL_REQUIRED"
	StatusToolApprovalRequired = "TOOL_CALL_APPROVAL_REQUIRED"
)

// ErrNotFound is returned when a session has no checkpoints or the
// requested checkpoint does not belong to the session.
var ErrNotFound = errors.New("checkpoint not found")

// StorageError wraps backend I/O failures so callers can distinguish them
// from domain errors like ErrNotFound.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "checkpoint storage: " + e.Op + ": " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// Checkpoint is one immutable snapshot of a session's progress.
type Checkpoint struct {
	SessionID string
	// Sequence starts at 1 and increases by exactly 1 per save.
	Sequence  int64
	Status    string
	State     []byte
	Goal      string
	Errors    []contract.WorkflowError
	CreatedAt time.Time
}

// SaveRequest carries everything needed to append a checkpoint.
type SaveRequest struct {
	SessionID string
	Status    string
	State     []byte
	Goal      string
	Errors    []contract.WorkflowError
}

// Store persists checkpoints. Implementations serialize sequence allocation
// per session; different sessions may save concurrently without contention.
type Store interface {
	// Save appends a checkpoint and returns it with its allocated sequence.
	Save(ctx context.Context, req SaveRequest) (Checkpoint, error)

	// LoadLatest returns the highest-sequence checkpoint for the session,
	// or ErrNotFound.
	LoadLatest(ctx context.Context, sessionID string) (Checkpoint, error)

	// Load returns a specific historical checkpoint, or ErrNotFound when
	// the sequence does not belong to the session.
	Load(ctx context.Context, sessionID string, sequence int64) (Checkpoint, error)
}
