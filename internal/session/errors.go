package session

import "fmt"

// ValidationError indicates a malformed start request. The session is never
// created; the error is reported synchronously to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid start request: field %q %s", e.Field, e.Reason)
}

// ProtocolViolation indicates a client event that breaks protocol
// expectations, like a response with no pending action. Logged, never fatal.
type ProtocolViolation struct {
	RequestID string
	Reason    string
}

// Error implements the error interface.
func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: request %q %s", e.RequestID, e.Reason)
}

// RejectedActionError indicates the client or its policy rejected a
// privileged action. The rejection reason lands in the session's error list;
// the protocol never retries the action itself.
type RejectedActionError struct {
	RequestID string
	Tool      string
	Reason    string
}

// Error implements the error interface.
func (e *RejectedActionError) Error() string {
	return fmt.Sprintf("action rejected: request %q tool %q: %s", e.RequestID, e.Tool, e.Reason)
}

// NotFoundError indicates a session lookup miss in the manager.
type NotFoundError struct {
	SessionID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session not found: %q", e.SessionID)
}
