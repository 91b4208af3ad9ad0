package approval

import (
	"context"
	"fmt"
	"sync"
)

// Gate tracks in-flight approval requests for one session. Each held action
// gets a completion channel; Await suspends until Resolve delivers a
// decision or the session stops.
type Gate struct {
	mu      sync.Mutex
	pending map[string]chan Decision
	closed  bool
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{pending: make(map[string]chan Decision)}
}

// Register creates the completion channel for an action about to be held.
// Registration happens before the approval request is surfaced to the client
// so a fast decision cannot race the wait.
func (g *Gate) Register(requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("approval gate closed")
	}
	if _, exists := g.pending[requestID]; exists {
		return fmt.Errorf("approval already pending for request %s", requestID)
	}
	g.pending[requestID] = make(chan Decision, 1)
	return nil
}

// Await blocks until the registered action is resolved or ctx is cancelled.
// When a decision and a stop arrive together, stop wins: a workflow being
// terminated must not execute a late approval.
func (g *Gate) Await(ctx context.Context, requestID string) (Decision, error) {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return Decision{}, fmt.Errorf("no pending approval for request %s", requestID)
	}

	defer g.remove(requestID)

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case d := <-ch:
		// Tie-break: a concurrent stop takes precedence over the decision.
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		default:
			return d, nil
		}
	}
}

// Resolve delivers a decision for a held action. Returns false if no
// approval is pending under that request ID, which callers record as a
// protocol violation.
func (g *Gate) Resolve(requestID string, d Decision) bool {
	g.mu.Lock()
	ch, ok := g.pending[requestID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- d:
		return true
	default:
		// A second decision for the same action: first one wins.
		return false
	}
}

// Pending reports whether the request ID has an unresolved approval.
func (g *Gate) Pending(requestID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[requestID]
	return ok
}

// Close rejects future registrations. Waiters are released through their
// context, not through the gate, so Close never races a decision delivery.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *Gate) remove(requestID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, requestID)
}
