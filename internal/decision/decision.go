// Package decision provides planner implementations for embedding and
// testing. The real reasoning layer lives outside this service; anything
// satisfying session.Planner can drive a workflow.
package decision

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/session"
)

// Scripted replays a fixed sequence of actions then signals completion.
// Used by tests and demo runs.
type Scripted struct {
	mu    sync.Mutex
	steps []contract.ActionPayload
	next  int
}

// NewScripted creates a planner that emits steps in order.
func NewScripted(steps ...contract.ActionPayload) *Scripted {
	return &Scripted{steps: steps}
}

// NextAction implements session.Planner.
func (p *Scripted) NextAction(_ context.Context, _ session.Snapshot) (contract.ActionPayload, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.steps) {
		return nil, false, nil
	}
	step := p.steps[p.next]
	p.next++
	return step, true, nil
}

// SerializeState implements session.PlannerState so scripted progress
// survives in checkpoints.
func (p *Scripted) SerializeState() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	blob, _ := json.Marshal(struct {
		Next  int `json:"next"`
		Total int `json:"total"`
	}{Next: p.next, Total: len(p.steps)})
	return blob
}

// Queue is a planner fed externally: an embedding process pushes actions in
// and closes the queue when the workflow is done. NextAction blocks until a
// step is available, the queue closes, or the context ends.
type Queue struct {
	steps chan contract.ActionPayload
}

// NewQueue creates a queue planner with the given buffer depth.
func NewQueue(buffer int) *Queue {
	if buffer < 1 {
		buffer = 1
	}
	return &Queue{steps: make(chan contract.ActionPayload, buffer)}
}

// Push adds an action for the session to emit next. Returns false once the
// queue is closed.
func (p *Queue) Push(payload contract.ActionPayload) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	p.steps <- payload
	return true
}

// Finish marks the workflow complete. No further pushes are accepted.
func (p *Queue) Finish() {
	close(p.steps)
}

// NextAction implements session.Planner.
func (p *Queue) NextAction(ctx context.Context, _ session.Snapshot) (contract.ActionPayload, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case step, open := <-p.steps:
		if !open {
			return nil, false, nil
		}
		return step, true, nil
	}
}
