package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/neopilot-ai/neopilot/internal/contract"
)

// ErrOutboxClosed is returned when enqueueing after the session terminated.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrStopped is delivered to response waiters released by session teardown.
var ErrStopped = errors.New("session stopped")

// Outbox is the outbound half of a session's stream. Actions queue up for
// the write pump; actions expecting a result register a per-request future
// that SubmitResponse resolves. Closing the queue is the stream's "no more
// outbound requests" signal.
type Outbox struct {
	mu      sync.Mutex
	queue   chan contract.Action
	pending map[string]chan contract.ActionResponse
	closed  bool
}

// NewOutbox creates an outbox with the given queue depth.
func NewOutbox(buffer int) *Outbox {
	if buffer < 1 {
		buffer = 1
	}
	return &Outbox{
		queue:   make(chan contract.Action, buffer),
		pending: make(map[string]chan contract.ActionResponse),
	}
}

// Actions is the channel the write pump drains. It is closed on session
// teardown once no more outbound requests will be produced.
func (o *Outbox) Actions() <-chan contract.Action {
	return o.queue
}

// Notify queues an action that expects no response (newCheckpoint).
func (o *Outbox) Notify(action contract.Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- action:
		return nil
	default:
		return fmt.Errorf("outbox queue full, dropping %s", action.RequestID)
	}
}

// Enqueue registers a response future for the action and queues it for
// emission. The future exists before the action reaches the wire so a fast
// client cannot respond into a void.
func (o *Outbox) Enqueue(action contract.Action) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	if _, exists := o.pending[action.RequestID]; exists {
		return fmt.Errorf("request %s already pending", action.RequestID)
	}
	ch := make(chan contract.ActionResponse, 1)
	select {
	case o.queue <- action:
		o.pending[action.RequestID] = ch
		return nil
	default:
		return fmt.Errorf("outbox queue full, dropping %s", action.RequestID)
	}
}

// Await blocks until the client's response arrives, the context is
// cancelled, or the session stops.
func (o *Outbox) Await(ctx context.Context, requestID string) (contract.ActionResponse, error) {
	o.mu.Lock()
	ch, ok := o.pending[requestID]
	o.mu.Unlock()
	if !ok {
		return contract.ActionResponse{}, fmt.Errorf("no pending response for request %s", requestID)
	}

	defer func() {
		o.mu.Lock()
		delete(o.pending, requestID)
		o.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return contract.ActionResponse{}, ctx.Err()
	case resp, open := <-ch:
		if !open {
			return contract.ActionResponse{}, ErrStopped
		}
		return resp, nil
	}
}

// Resolve delivers a client response to its waiting future. Returns false
// when no action is pending under that request ID; callers record that as a
// protocol violation and carry on.
func (o *Outbox) Resolve(requestID string, resp contract.ActionResponse) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.pending[requestID]
	if !ok {
		return false
	}
	// The send happens under o.mu so it cannot race Close closing the
	// channel. The future is buffered, so holding the lock never blocks.
	select {
	case ch <- resp:
		return true
	default:
		// Duplicate response for the same request: first one wins.
		return false
	}
}

// PendingRequests returns the request IDs still awaiting a response.
func (o *Outbox) PendingRequests() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	return ids
}

// Close drains unsent actions, releases response waiters, and closes the
// queue so the write pump observes end-of-stream. Idempotent. The returned
// actions were queued but never reached the wire; callers log them.
func (o *Outbox) Close() []contract.Action {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	var unsent []contract.Action
drain:
	for {
		select {
		case a := <-o.queue:
			unsent = append(unsent, a)
		default:
			break drain
		}
	}
	close(o.queue)

	for id, ch := range o.pending {
		close(ch)
		delete(o.pending, id)
	}
	return unsent
}
