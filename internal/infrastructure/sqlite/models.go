package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/contract"
)

// checkpointModel represents the database row for the checkpoints table.
// Fields map directly to SQL columns with Unix timestamps for time values.
type checkpointModel struct {
	SessionID string
	Seq       int64
	Status    string
	State     []byte
	Goal      string
	Errors    string // JSON array of workflow errors
	CreatedAt int64  // Unix timestamp
}

// toCheckpointModel converts a domain checkpoint to a database row.
func toCheckpointModel(cp checkpoint.Checkpoint) (*checkpointModel, error) {
	errs := cp.Errors
	if errs == nil {
		errs = []contract.WorkflowError{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint errors: %w", err)
	}
	return &checkpointModel{
		SessionID: cp.SessionID,
		Seq:       cp.Sequence,
		Status:    cp.Status,
		State:     cp.State,
		Goal:      cp.Goal,
		Errors:    string(encoded),
		CreatedAt: cp.CreatedAt.Unix(),
	}, nil
}

// toDomain converts a database row to a domain checkpoint.
func (m *checkpointModel) toDomain() (checkpoint.Checkpoint, error) {
	var errs []contract.WorkflowError
	if m.Errors != "" {
		if err := json.Unmarshal([]byte(m.Errors), &errs); err != nil {
			return checkpoint.Checkpoint{}, fmt.Errorf("failed to decode checkpoint errors: %w", err)
		}
	}
	return checkpoint.Checkpoint{
		SessionID: m.SessionID,
		Sequence:  m.Seq,
		Status:    m.Status,
		State:     m.State,
		Goal:      m.Goal,
		Errors:    errs,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}, nil
}
