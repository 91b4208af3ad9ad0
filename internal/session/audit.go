package session

import "time"

// AuditEntry records one state transition. The trail is what checkpoint
// reconstruction and debugging lean on, so every transition appends exactly
// one entry.
type AuditEntry struct {
	From  State
	To    State
	Event string
	At    time.Time
}

// EventKind classifies events published on the session broker.
type EventKind string

const (
	// KindStateChanged is published on every lifecycle transition.
	KindStateChanged EventKind = "state_changed"
	// KindHeartbeat is published when a client heartbeat is recorded.
	KindHeartbeat EventKind = "heartbeat"
	// KindProtocolViolation is published on unmatched responses/approvals.
	KindProtocolViolation EventKind = "protocol_violation"
)

// Event is the control-plane event payload carried by the pubsub broker.
// The liveness monitor consumes heartbeats; lifecycle consumers watch state
// changes.
type Event struct {
	Kind      EventKind
	SessionID string
	State     State
	Reason    string
	At        time.Time
}
