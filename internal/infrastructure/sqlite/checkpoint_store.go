package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/contract"
)

// checkpointStore implements checkpoint.Store using SQLite.
type checkpointStore struct {
	db *sql.DB
}

// newCheckpointStore creates a new checkpointStore instance.
func newCheckpointStore(db *sql.DB) *checkpointStore {
	return &checkpointStore{db: db}
}

// Ensure checkpointStore implements checkpoint.Store.
var _ checkpoint.Store = (*checkpointStore)(nil)

// Save appends a checkpoint, allocating the next sequence number inside a
// transaction. The (session_id, seq) primary key backs the allocation: even
// if two writers race past the MAX(seq) read, one insert fails rather than
// producing a duplicate or a gap.
func (r *checkpointStore) Save(ctx context.Context, req checkpoint.SaveRequest) (checkpoint.Checkpoint, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: "save", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE session_id = ?`,
		req.SessionID,
	).Scan(&next)
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: "save", Err: fmt.Errorf("failed to allocate sequence: %w", err)}
	}

	cp := checkpoint.Checkpoint{
		SessionID: req.SessionID,
		Sequence:  next,
		Status:    req.Status,
		State:     req.State,
		Goal:      req.Goal,
		Errors:    req.Errors,
		CreatedAt: time.Now().UTC(),
	}
	model, err := toCheckpointModel(cp)
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: "save", Err: err}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, seq, status, state, goal, errors, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model.SessionID, model.Seq, model.Status, model.State, model.Goal, model.Errors, model.CreatedAt,
	)
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: "save", Err: fmt.Errorf("failed to insert checkpoint: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: "save", Err: fmt.Errorf("failed to commit checkpoint: %w", err)}
	}
	return cp, nil
}

// LoadLatest returns the highest-sequence checkpoint for the session.
func (r *checkpointStore) LoadLatest(ctx context.Context, sessionID string) (checkpoint.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT session_id, seq, status, state, goal, errors, created_at
		 FROM checkpoints
		 WHERE session_id = ?
		 ORDER BY seq DESC LIMIT 1`,
		sessionID,
	)
	return scanCheckpoint(row, "load_latest")
}

// Load returns a specific historical checkpoint for the session.
func (r *checkpointStore) Load(ctx context.Context, sessionID string, sequence int64) (checkpoint.Checkpoint, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT session_id, seq, status, state, goal, errors, created_at
		 FROM checkpoints
		 WHERE session_id = ? AND seq = ?`,
		sessionID, sequence,
	)
	return scanCheckpoint(row, "load")
}

func scanCheckpoint(row *sql.Row, op string) (checkpoint.Checkpoint, error) {
	var model checkpointModel
	err := row.Scan(&model.SessionID, &model.Seq, &model.Status, &model.State, &model.Goal, &model.Errors, &model.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: op, Err: fmt.Errorf("failed to scan checkpoint: %w", err)}
	}
	cp, err := model.toDomain()
	if err != nil {
		return checkpoint.Checkpoint{}, &checkpoint.StorageError{Op: op, Err: err}
	}
	if cp.Errors == nil {
		cp.Errors = []contract.WorkflowError{}
	}
	return cp, nil
}
