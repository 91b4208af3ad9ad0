// Package session implements the per-workflow control loop: it validates the
// start request, emits actions through the approval gate and outbox,
// correlates responses by request ID, sanitizes tool output, checkpoints
// progress, and terminates on completion, stop, failure, or heartbeat
// timeout.
package session

import "time"

// State is a session lifecycle state.
type State string

const (
	StateCreated           State = "created"
	StateRunning           State = "running"
	StateAwaitingApproval  State = "awaiting_approval"
	StateAwaitingResponse  State = "awaiting_response"
	StateCompleted         State = "completed"
	StateStopped           State = "stopped"
	StateFailed            State = "failed"
	StateTimedOut          State = "timed_out"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateStopped, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// ReasonHeartbeatTimeout is the stop reason the liveness monitor uses; it
// maps the terminal state to timed_out instead of stopped.
const ReasonHeartbeatTimeout = "heartbeat_timeout"

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
