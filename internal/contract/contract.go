// Package contract defines the wire vocabulary of the workflow execution
// protocol: the tagged union of client events flowing in and the tagged
// union of server actions flowing out. Field names are part of the contract
// and are preserved byte-for-byte for interoperability with deployed
// clients; do not rename JSON tags.
//
// The package is a data schema plus codec. It carries no protocol logic.
package contract

// ClientEventPayload is the closed set of inbound event variants. Exactly
// one variant is present per ClientEvent.
type ClientEventPayload interface {
	// EventVariant returns the wire name of the variant.
	EventVariant() EventVariant
}

// EventVariant is the wire name of a client event variant.
type EventVariant string

const (
	EventStartRequest   EventVariant = "startRequest"
	EventActionResponse EventVariant = "actionResponse"
	EventHeartbeat      EventVariant = "heartbeat"
	EventStopWorkflow   EventVariant = "stopWorkflow"
)

// ClientEvent is the inbound envelope. One event per stream message.
type ClientEvent struct {
	Payload ClientEventPayload
}

// StartRequest opens a workflow session. It must be the first event on a
// stream and must not be repeated.
type StartRequest struct {
	ClientVersion      string              `json:"clientVersion"`
	WorkflowID         string              `json:"workflowID,omitempty"`
	WorkflowDefinition string              `json:"workflowDefinition"`
	Goal               string              `json:"goal"`
	WorkflowMetadata   string              `json:"workflowMetadata,omitempty"`
	AdditionalContext  []AdditionalContext `json:"additional_context,omitempty"`
	PreapprovedTools   []string            `json:"preapproved_tools,omitempty"`
}

// AdditionalContext is user-supplied context attached to the start request.
// Categories are gated by a configured allow-list before they reach the
// decision layer.
type AdditionalContext struct {
	Category string `json:"category"`
	ID       string `json:"id,omitempty"`
	Content  string `json:"content,omitempty"`
	Metadata string `json:"metadata,omitempty"`
}

// ActionResponse reports the outcome of an action the client executed
// locally. It correlates to the emitted Action by RequestID.
type ActionResponse struct {
	RequestID string `json:"requestID"`

	// Response is the legacy flat response field. When empty it is
	// populated from the typed response below.
	Response string `json:"response,omitempty"`

	PlainTextResponse *PlainTextResponse `json:"plainTextResponse,omitempty"`
	HTTPResponse      *HTTPResponse      `json:"httpResponse,omitempty"`

	// Approval resolves an action held at the approval gate.
	Approval *Approval `json:"approval,omitempty"`
}

// PlainTextResponse carries unstructured tool output.
type PlainTextResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HTTPResponse carries the outcome of a runHTTPRequest action.
type HTTPResponse struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Approval is the client's decision on a privileged action.
type Approval struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Heartbeat signals client liveness. It carries no payload; an in-flight
// long-running action does not count as a heartbeat.
type Heartbeat struct{}

// StopWorkflow requests termination of the session from any state.
type StopWorkflow struct {
	Reason string `json:"reason,omitempty"`
}

func (*StartRequest) EventVariant() EventVariant   { return EventStartRequest }
func (*ActionResponse) EventVariant() EventVariant { return EventActionResponse }
func (*Heartbeat) EventVariant() EventVariant      { return EventHeartbeat }
func (*StopWorkflow) EventVariant() EventVariant   { return EventStopWorkflow }
