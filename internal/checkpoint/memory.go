package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/neopilot-ai/neopilot/internal/contract"
)

// MemoryStore keeps checkpoints in process memory. Used by tests and by
// deployments that opt out of persistence.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]Checkpoint
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Checkpoint)}
}

func (s *MemoryStore) Save(_ context.Context, req SaveRequest) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.sessions[req.SessionID]
	cp := Checkpoint{
		SessionID: req.SessionID,
		Sequence:  int64(len(chain)) + 1,
		Status:    req.Status,
		State:     append([]byte(nil), req.State...),
		Goal:      req.Goal,
		Errors:    append([]contract.WorkflowError(nil), req.Errors...),
		CreatedAt: time.Now().UTC(),
	}
	s.sessions[req.SessionID] = append(chain, cp)
	return cp, nil
}

func (s *MemoryStore) LoadLatest(_ context.Context, sessionID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.sessions[sessionID]
	if len(chain) == 0 {
		return Checkpoint{}, ErrNotFound
	}
	return chain[len(chain)-1], nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string, sequence int64) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.sessions[sessionID]
	if sequence < 1 || sequence > int64(len(chain)) {
		return Checkpoint{}, ErrNotFound
	}
	return chain[sequence-1], nil
}
