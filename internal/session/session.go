package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neopilot-ai/neopilot/internal/approval"
	"github.com/neopilot-ai/neopilot/internal/checkpoint"
	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/log"
	"github.com/neopilot-ai/neopilot/internal/pubsub"
	"github.com/neopilot-ai/neopilot/internal/security"
	"github.com/neopilot-ai/neopilot/internal/workflow"
)

// Planner is the consumed decision-layer interface. It selects the next
// action for a session; ok=false signals workflow completion. How the
// planner decides is out of protocol scope.
type Planner interface {
	NextAction(ctx context.Context, snap Snapshot) (contract.ActionPayload, bool, error)
}

// PlannerState is optionally implemented by planners that carry resumable
// state. The blob is opaque to the session; it is persisted verbatim in
// checkpoints.
type PlannerState interface {
	SerializeState() []byte
}

// Snapshot is a read-only view of session state handed to the planner and
// the lifecycle REST surface.
type Snapshot struct {
	ID              string
	Definition      string
	Goal            string
	Metadata        string
	Context         []contract.AdditionalContext
	ClientVersion   string
	State           State
	StopReason      string
	Errors          []contract.WorkflowError
	LastHeartbeat   time.Time
	CreatedAt       time.Time
	Audit           []AuditEntry
	PendingRequests []string
}

// Session is one workflow execution bound to a single client stream.
type Session struct {
	id            string
	clientVersion string
	definition    workflow.Definition
	goal          string
	metadata      string
	context       []contract.AdditionalContext
	preapproved   map[string]bool

	ctx    context.Context
	cancel context.CancelFunc

	clock      Clock
	classifier *approval.Classifier
	gate       *approval.Gate
	outbox     *Outbox
	pipeline   *security.Pipeline
	store      checkpoint.Store
	broker     *pubsub.Broker[Event]
	tracer     trace.Tracer

	mu            sync.Mutex
	state         State
	stopReason    string
	audit         []AuditEntry
	errs          []contract.WorkflowError
	lastHeartbeat time.Time
	createdAt     time.Time
}

// checkpointState is the session-owned part of the persisted blob. It
// carries enough to reproduce pending-action state on resume; the planner
// part is opaque.
type checkpointState struct {
	State           State           `json:"state"`
	PendingApproval string          `json:"pendingApproval,omitempty"`
	ApprovalPreview string          `json:"preview,omitempty"`
	PendingRequests []string        `json:"pendingRequests,omitempty"`
	Planner         json.RawMessage `json:"planner,omitempty"`
}

// heldAction describes a request suspended at the approval gate, carried in
// the checkpoint blob so the client can render what it is deciding on.
type heldAction struct {
	RequestID string
	Preview   string
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a consistent copy of observable session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:              s.id,
		Definition:      s.definition.ID,
		Goal:            s.goal,
		Metadata:        s.metadata,
		Context:         append([]contract.AdditionalContext(nil), s.context...),
		ClientVersion:   s.clientVersion,
		State:           s.state,
		StopReason:      s.stopReason,
		Errors:          append([]contract.WorkflowError(nil), s.errs...),
		LastHeartbeat:   s.lastHeartbeat,
		CreatedAt:       s.createdAt,
		Audit:           append([]AuditEntry(nil), s.audit...),
		PendingRequests: s.outbox.PendingRequests(),
	}
}

// Actions exposes the outbound queue for the transport's write pump.
func (s *Session) Actions() <-chan contract.Action { return s.outbox.Actions() }

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Heartbeat records client liveness. Terminal sessions ignore late
// heartbeats.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		log.Debug(log.CatSession, "Late heartbeat ignored", "session", s.id, "state", string(s.state))
		return
	}
	now := s.clock.Now()
	s.lastHeartbeat = now
	s.mu.Unlock()

	s.broker.Publish(pubsub.UpdatedEvent, Event{
		Kind: KindHeartbeat, SessionID: s.id, At: now,
	})
}

// SubmitResponse routes a client response to its waiting action or, when it
// carries an approval, to the gate. An unmatched request ID is a protocol
// violation: logged, published, never fatal.
func (s *Session) SubmitResponse(resp contract.ActionResponse) {
	if resp.Approval != nil {
		d := approval.Decision{Approved: resp.Approval.Approved, Reason: resp.Approval.Reason}
		if !s.gate.Resolve(resp.RequestID, d) {
			s.protocolViolation(resp.RequestID, "approval with no held action")
		}
		return
	}
	if !s.outbox.Resolve(resp.RequestID, resp) {
		s.protocolViolation(resp.RequestID, "response with no pending action")
	}
}

// Emit sends one action through the full pipeline: classification, approval
// hold for privileged variants, outbox emission, response wait, and
// sanitization of the returned payload. Returns RejectedActionError when the
// client refuses the action.
func (s *Session) Emit(ctx context.Context, payload contract.ActionPayload) (contract.ActionResponse, error) {
	requestID := uuid.NewString()
	action := contract.Action{RequestID: requestID, Payload: payload}

	// Join the caller's context with the session's lifetime so Stop releases
	// any wait inside this call, approval holds included.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(s.ctx, cancel)
	defer release()

	ctx, span := s.tracer.Start(ctx, "session.action", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("action.request_id", requestID),
		attribute.String("action.variant", string(payload.ActionVariant())),
	))
	defer span.End()

	if s.classifier.Classify(action, s.preapproved) == approval.NeedsApproval {
		resp, err := s.holdForApproval(ctx, action)
		if err != nil {
			return resp, err
		}
	}

	if !s.transition(StateAwaitingResponse, "action_emitted "+requestID) {
		return contract.ActionResponse{}, ErrStopped
	}
	if err := s.outbox.Enqueue(action); err != nil {
		return contract.ActionResponse{}, err
	}
	log.Debug(log.CatSession, "Action emitted",
		"session", s.id, "request", requestID, "variant", string(payload.ActionVariant()))

	resp, err := s.outbox.Await(ctx, requestID)
	if err != nil {
		return contract.ActionResponse{}, err
	}

	s.sanitize(payload.ToolName(), &resp)
	resp.Normalize()
	s.transition(StateRunning, "response_received "+requestID)
	return resp, nil
}

// holdForApproval suspends the action at the gate. The client learns about
// the held action through a TOOL_CALL_APPROVAL_REQUIRED checkpoint carrying
// a human-readable preview; it answers with an actionResponse whose approval
// field references the held request ID.
func (s *Session) holdForApproval(ctx context.Context, action contract.Action) (contract.ActionResponse, error) {
	requestID := action.RequestID
	if !s.transition(StateAwaitingApproval, "approval_required "+requestID) {
		return contract.ActionResponse{}, ErrStopped
	}
	if err := s.gate.Register(requestID); err != nil {
		return contract.ActionResponse{}, err
	}

	s.saveCheckpoint(ctx, checkpoint.StatusToolApprovalRequired, &heldAction{
		RequestID: requestID,
		Preview:   approval.Preview(action),
	}, nil)

	decision, err := s.gate.Await(ctx, requestID)
	if err != nil {
		// Stop wins ties; the session is already terminal or terminating.
		return contract.ActionResponse{}, err
	}
	if !decision.Approved {
		s.recordError("rejected_action", decision.Reason)
		s.transition(StateRunning, "approval_rejected "+requestID)
		return contract.ActionResponse{}, &RejectedActionError{
			RequestID: requestID,
			Tool:      action.Payload.ToolName(),
			Reason:    decision.Reason,
		}
	}
	log.Info(log.CatApproval, "Action approved", "session", s.id, "request", requestID)
	return contract.ActionResponse{}, nil
}

// Run drives the session to a terminal state: ask the planner for the next
// action, emit it, checkpoint, repeat. Rejected actions return control to
// the planner without retrying; anything else fatal fails the session.
func (s *Session) Run(ctx context.Context, planner Planner) {
	// A stopped session must release a planner blocked in NextAction even
	// when the caller's context outlives the session.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(s.ctx, cancel)
	defer release()

	ctx, span := s.tracer.Start(ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("workflow.definition", s.definition.ID),
	))
	defer span.End()

	for {
		if s.State().Terminal() {
			return
		}

		payload, ok, err := planner.NextAction(ctx, s.Snapshot())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.Fail(err)
			return
		}
		if !ok {
			s.Complete(ctx, planner)
			return
		}

		_, err = s.Emit(ctx, payload)
		var rejected *RejectedActionError
		if errors.As(err, &rejected) {
			// The planner chooses a different step; the protocol never
			// retries a rejected action.
			continue
		}
		if err != nil {
			if s.State().Terminal() || errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
				return
			}
			s.Fail(err)
			return
		}

		if err := s.saveCheckpoint(ctx, checkpoint.StatusRunning, nil, planner); err != nil {
			s.Fail(err)
			return
		}
	}
}

// Complete finishes the workflow: final checkpoint, terminal transition,
// teardown.
func (s *Session) Complete(ctx context.Context, planner Planner) {
	s.saveCheckpoint(ctx, checkpoint.StatusFinished, nil, planner)
	s.finish(StateCompleted, "workflow_complete")
}

// Fail terminates the session with an error recorded in its error list.
func (s *Session) Fail(err error) {
	s.recordError("session_failure", err.Error())
	log.ErrorErr(log.CatSession, "Session failed", err, "session", s.id)
	s.finish(StateFailed, "failure: "+err.Error())
}

// Stop terminates the session from any state, recording the reason.
// Idempotent: stopping a terminal session is a no-op that appends nothing.
func (s *Session) Stop(reason string) {
	if s.State().Terminal() {
		return
	}
	to := StateStopped
	if reason == ReasonHeartbeatTimeout {
		to = StateTimedOut
		s.recordError("heartbeat_timeout", "client missed consecutive heartbeat intervals")
	}
	s.finish(to, "stop: "+reason)
}

// finish performs the one-way terminal transition and tears down the
// session's concurrency primitives.
func (s *Session) finish(to State, event string) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	from := s.state
	s.state = to
	s.stopReason = event
	s.audit = append(s.audit, AuditEntry{From: from, To: to, Event: event, At: s.clock.Now()})
	s.mu.Unlock()

	s.cancel()
	s.gate.Close()
	unsent := s.outbox.Close()
	for _, a := range unsent {
		variant := ""
		if a.Payload != nil {
			variant = string(a.Payload.ActionVariant())
		}
		log.Warn(log.CatSession, "Dropping unsent outbound action",
			"session", s.id, "request", a.RequestID, "variant", variant)
	}

	log.Info(log.CatSession, "Session terminal",
		"session", s.id, "state", string(to), "event", event)
	s.broker.Publish(pubsub.UpdatedEvent, Event{
		Kind: KindStateChanged, SessionID: s.id, State: to, Reason: event, At: s.clock.Now(),
	})
}

// transition moves between non-terminal states. Returns false when the
// session is already terminal.
func (s *Session) transition(to State, event string) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	from := s.state
	if from == to {
		s.mu.Unlock()
		return true
	}
	s.state = to
	s.audit = append(s.audit, AuditEntry{From: from, To: to, Event: event, At: s.clock.Now()})
	s.mu.Unlock()

	s.broker.Publish(pubsub.UpdatedEvent, Event{
		Kind: KindStateChanged, SessionID: s.id, State: to, Reason: event, At: s.clock.Now(),
	})
	return true
}

// saveCheckpoint persists progress and notifies the client with a
// newCheckpoint action. held names a request suspended at the gate, with its
// preview, so a resume reproduces the same pending-action state and the
// client can show what needs a decision.
func (s *Session) saveCheckpoint(ctx context.Context, status string, held *heldAction, planner Planner) error {
	ctx, span := s.tracer.Start(ctx, "session.checkpoint", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("checkpoint.status", status),
	))
	defer span.End()

	state := checkpointState{
		State:           s.State(),
		PendingRequests: s.outbox.PendingRequests(),
	}
	if held != nil {
		state.PendingApproval = held.RequestID
		state.ApprovalPreview = held.Preview
	}
	if ps, ok := planner.(PlannerState); ok && ps != nil {
		state.Planner = ps.SerializeState()
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	errs := append([]contract.WorkflowError(nil), s.errs...)
	s.mu.Unlock()

	cp, err := s.store.Save(ctx, checkpoint.SaveRequest{
		SessionID: s.id,
		Status:    status,
		State:     blob,
		Goal:      s.goal,
		Errors:    errs,
	})
	if err != nil {
		log.ErrorErr(log.CatCheckpoint, "Checkpoint save failed", err, "session", s.id)
		s.recordError("storage_error", err.Error())
		return err
	}

	notice := contract.Action{
		RequestID: uuid.NewString(),
		Payload: &contract.NewCheckpoint{
			Status:     status,
			Checkpoint: string(blob),
			Goal:       s.goal,
			Errors:     errs,
		},
	}
	if err := s.outbox.Notify(notice); err != nil {
		log.Warn(log.CatSession, "Checkpoint notification not delivered",
			"session", s.id, "seq", cp.Sequence, "error", err.Error())
	}
	log.Debug(log.CatCheckpoint, "Checkpoint saved",
		"session", s.id, "seq", cp.Sequence, "status", status)
	return nil
}

// sanitize routes tool-bound response payloads through the security
// pipeline. Failures fail closed: the offending field is redacted, the
// failure recorded, and the session continues.
func (s *Session) sanitize(toolName string, resp *contract.ActionResponse) {
	clean := func(field, value string) string {
		if value == "" {
			return value
		}
		out, err := s.pipeline.ApplyString(toolName, value)
		if err != nil {
			log.ErrorErr(log.CatSecurity, "Sanitization failed", err,
				"session", s.id, "tool", toolName, "field", field)
			s.recordError("sanitization_failure", err.Error())
		}
		return out
	}

	resp.Response = clean("response", resp.Response)
	if resp.PlainTextResponse != nil {
		resp.PlainTextResponse.Response = clean("plainTextResponse", resp.PlainTextResponse.Response)
	}
	if resp.HTTPResponse != nil {
		resp.HTTPResponse.Body = clean("httpResponse.body", resp.HTTPResponse.Body)
	}
}

func (s *Session) recordError(kind, message string) {
	s.mu.Lock()
	s.errs = append(s.errs, contract.WorkflowError{Kind: kind, Message: message})
	s.mu.Unlock()
}

func (s *Session) protocolViolation(requestID, reason string) {
	v := &ProtocolViolation{RequestID: requestID, Reason: reason}
	log.Warn(log.CatSession, "Protocol violation", "session", s.id, "detail", v.Error())
	s.broker.Publish(pubsub.UpdatedEvent, Event{
		Kind: KindProtocolViolation, SessionID: s.id, Reason: v.Error(), At: s.clock.Now(),
	})
}

var tracer = otel.Tracer("github.com/neopilot-ai/neopilot/internal/session")
