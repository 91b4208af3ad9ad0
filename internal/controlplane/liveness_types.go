// Package controlplane provides liveness monitoring for workflow sessions.
package controlplane

import (
	"fmt"
	"time"
)

// Liveness is the health classification of one session's heartbeat cadence.
type Liveness string

const (
	// LivenessAlive means the client heartbeated within the last interval.
	LivenessAlive Liveness = "alive"
	// LivenessSuspected means one heartbeat interval elapsed with no beat.
	LivenessSuspected Liveness = "suspected"
	// LivenessDead means the configured miss tolerance was exhausted; the
	// session is stopped with a heartbeat timeout.
	LivenessDead Liveness = "dead"
)

// Policy defines the liveness thresholds. Both values are configuration
// inputs, never hardcoded.
type Policy struct {
	// HeartbeatInterval is the cadence clients are expected to beat at.
	HeartbeatInterval time.Duration

	// MissTolerance is how many consecutive intervals may elapse before the
	// session is declared dead. The first missed interval always marks it
	// suspected.
	MissTolerance int
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive: %v", p.HeartbeatInterval)
	}
	if p.MissTolerance < 1 {
		return fmt.Errorf("miss_tolerance must be at least 1: %d", p.MissTolerance)
	}
	return nil
}

// SuspectedAfter is the silence duration that marks a session suspected.
func (p Policy) SuspectedAfter() time.Duration {
	return p.HeartbeatInterval
}

// DeadAfter is the silence duration that marks a session dead.
func (p Policy) DeadAfter() time.Duration {
	return p.HeartbeatInterval * time.Duration(p.MissTolerance)
}

// Status is the monitor's view of one tracked session.
type Status struct {
	SessionID       string
	Liveness        Liveness
	LastHeartbeatAt time.Time
}

// TransitionEvent is emitted when a session's liveness classification
// changes.
type TransitionEvent struct {
	SessionID string
	From      Liveness
	To        Liveness
	Details   string
	At        time.Time
}

// Clock interface for time operations (allows testing).
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the real time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
