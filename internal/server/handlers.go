package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/neopilot-ai/neopilot/internal/contract"
	"github.com/neopilot-ai/neopilot/internal/session"
)

// workflowStatus is the REST view of a session.
type workflowStatus struct {
	ID                 string                   `json:"id"`
	WorkflowDefinition string                   `json:"workflowDefinition"`
	Goal               string                   `json:"goal"`
	State              string                   `json:"state"`
	StopReason         string                   `json:"stopReason,omitempty"`
	Errors             []contract.WorkflowError `json:"errors,omitempty"`
	PendingRequests    []string                 `json:"pendingRequests,omitempty"`
	Liveness           string                   `json:"liveness,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
	LastHeartbeatAt    time.Time                `json:"lastHeartbeatAt"`
}

type definitionView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Category         string   `json:"category,omitempty"`
	Source           string   `json:"source"`
	PreapprovedTools []string `json:"preapprovedTools,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type issueTokenRequest struct {
	Subject         string   `json:"subject"`
	WorkflowID      string   `json:"workflowID,omitempty"`
	AllowedVariants []string `json:"allowedVariants,omitempty"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	snaps := s.manager.List()
	out := make([]workflowStatus, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.statusView(snap))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, err := s.manager.Get(id)
	if err != nil {
		var nf *session.NotFoundError
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.statusView(snap))
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req cancelRequest
	if r.Body != nil {
		// An empty body is fine; cancellation needs no reason.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "canceled"
	}

	if err := s.manager.Stop(id, reason); err != nil {
		var nf *session.NotFoundError
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "state": "stopping"})
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.List()
	out := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		out = append(out, definitionView{
			ID:               def.ID,
			Name:             def.Name,
			Description:      def.Description,
			Category:         def.Category,
			Source:           def.Source.String(),
			PreapprovedTools: def.PreapprovedTools,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}

	for _, v := range req.AllowedVariants {
		if !validVariant(v) {
			respondError(w, http.StatusBadRequest, "unknown action variant: "+v)
			return
		}
	}

	tok, claims, err := s.issuer.Issue(req.Subject, req.WorkflowID, req.AllowedVariants)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, issueTokenResponse{
		Token:     tok,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	})
}

func (s *Server) statusView(snap session.Snapshot) workflowStatus {
	status := workflowStatus{
		ID:                 snap.ID,
		WorkflowDefinition: snap.Definition,
		Goal:               snap.Goal,
		State:              string(snap.State),
		StopReason:         snap.StopReason,
		Errors:             snap.Errors,
		PendingRequests:    snap.PendingRequests,
		CreatedAt:          snap.CreatedAt,
		LastHeartbeatAt:    snap.LastHeartbeat,
	}
	if s.monitor != nil {
		if live, ok := s.monitor.Status(snap.ID); ok {
			status.Liveness = string(live.Liveness)
		}
	}
	return status
}

func validVariant(name string) bool {
	for _, v := range contract.Variants() {
		if string(v) == name {
			return true
		}
	}
	return false
}
