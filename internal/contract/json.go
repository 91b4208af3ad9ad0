package contract

import (
	"encoding/json"
	"fmt"
)

// clientEventJSON is the wire envelope for ClientEvent. Exactly one variant
// field is populated, mirroring the original contract's oneof.
type clientEventJSON struct {
	StartRequest   *StartRequest   `json:"startRequest,omitempty"`
	ActionResponse *ActionResponse `json:"actionResponse,omitempty"`
	Heartbeat      *Heartbeat      `json:"heartbeat,omitempty"`
	StopWorkflow   *StopWorkflow   `json:"stopWorkflow,omitempty"`
}

// MarshalJSON encodes the event as a single-variant envelope.
func (e ClientEvent) MarshalJSON() ([]byte, error) {
	var env clientEventJSON
	switch p := e.Payload.(type) {
	case *StartRequest:
		env.StartRequest = p
	case *ActionResponse:
		env.ActionResponse = p
	case *Heartbeat:
		env.Heartbeat = p
	case *StopWorkflow:
		env.StopWorkflow = p
	case nil:
		return nil, fmt.Errorf("contract: client event has no payload")
	default:
		return nil, fmt.Errorf("contract: unknown client event payload %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a single-variant envelope. An envelope with no known
// variant, or with more than one, is rejected.
func (e *ClientEvent) UnmarshalJSON(data []byte) error {
	var env clientEventJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload ClientEventPayload
	count := 0
	if env.StartRequest != nil {
		payload = env.StartRequest
		count++
	}
	if env.ActionResponse != nil {
		payload = env.ActionResponse
		count++
	}
	if env.Heartbeat != nil {
		payload = env.Heartbeat
		count++
	}
	if env.StopWorkflow != nil {
		payload = env.StopWorkflow
		count++
	}

	switch count {
	case 0:
		return fmt.Errorf("contract: client event has no recognized variant")
	case 1:
		e.Payload = payload
		return nil
	default:
		return fmt.Errorf("contract: client event has %d variants, want exactly one", count)
	}
}

// actionJSON is the wire envelope for Action: the server-assigned requestID
// plus exactly one variant field.
type actionJSON struct {
	RequestID string `json:"requestID"`

	RunCommand     *RunCommand     `json:"runCommand,omitempty"`
	RunReadFile    *ReadFile       `json:"runReadFile,omitempty"`
	RunReadFiles   *ReadFiles      `json:"runReadFiles,omitempty"`
	RunWriteFile   *WriteFile      `json:"runWriteFile,omitempty"`
	RunEditFile    *EditFile       `json:"runEditFile,omitempty"`
	RunHTTPRequest *RunHTTPRequest `json:"runHTTPRequest,omitempty"`
	RunGitCommand  *RunGitCommand  `json:"runGitCommand,omitempty"`
	ListDirectory  *ListDirectory  `json:"listDirectory,omitempty"`
	Grep           *Grep           `json:"grep,omitempty"`
	FindFiles      *FindFiles      `json:"findFiles,omitempty"`
	RunMCPTool     *RunMCPTool     `json:"runMCPTool,omitempty"`
	Mkdir          *Mkdir          `json:"mkdir,omitempty"`
	NewCheckpoint  *NewCheckpoint  `json:"newCheckpoint,omitempty"`
}

// MarshalJSON encodes the action as a requestID plus single-variant envelope.
func (a Action) MarshalJSON() ([]byte, error) {
	env := actionJSON{RequestID: a.RequestID}
	switch p := a.Payload.(type) {
	case *RunCommand:
		env.RunCommand = p
	case *ReadFile:
		env.RunReadFile = p
	case *ReadFiles:
		env.RunReadFiles = p
	case *WriteFile:
		env.RunWriteFile = p
	case *EditFile:
		env.RunEditFile = p
	case *RunHTTPRequest:
		env.RunHTTPRequest = p
	case *RunGitCommand:
		env.RunGitCommand = p
	case *ListDirectory:
		env.ListDirectory = p
	case *Grep:
		env.Grep = p
	case *FindFiles:
		env.FindFiles = p
	case *RunMCPTool:
		env.RunMCPTool = p
	case *Mkdir:
		env.Mkdir = p
	case *NewCheckpoint:
		env.NewCheckpoint = p
	case nil:
		return nil, fmt.Errorf("contract: action %s has no payload", a.RequestID)
	default:
		return nil, fmt.Errorf("contract: unknown action payload %T", p)
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a requestID plus single-variant envelope.
func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload ActionPayload
	count := 0
	if env.RunCommand != nil {
		payload = env.RunCommand
		count++
	}
	if env.RunReadFile != nil {
		payload = env.RunReadFile
		count++
	}
	if env.RunReadFiles != nil {
		payload = env.RunReadFiles
		count++
	}
	if env.RunWriteFile != nil {
		payload = env.RunWriteFile
		count++
	}
	if env.RunEditFile != nil {
		payload = env.RunEditFile
		count++
	}
	if env.RunHTTPRequest != nil {
		payload = env.RunHTTPRequest
		count++
	}
	if env.RunGitCommand != nil {
		payload = env.RunGitCommand
		count++
	}
	if env.ListDirectory != nil {
		payload = env.ListDirectory
		count++
	}
	if env.Grep != nil {
		payload = env.Grep
		count++
	}
	if env.FindFiles != nil {
		payload = env.FindFiles
		count++
	}
	if env.RunMCPTool != nil {
		payload = env.RunMCPTool
		count++
	}
	if env.Mkdir != nil {
		payload = env.Mkdir
		count++
	}
	if env.NewCheckpoint != nil {
		payload = env.NewCheckpoint
		count++
	}

	switch count {
	case 0:
		return fmt.Errorf("contract: action %q has no recognized variant", env.RequestID)
	case 1:
		a.RequestID = env.RequestID
		a.Payload = payload
		return nil
	default:
		return fmt.Errorf("contract: action %q has %d variants, want exactly one", env.RequestID, count)
	}
}
