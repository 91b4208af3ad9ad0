// Package approval gates privileged actions behind explicit client
// authorization. Classification is configuration-driven: the privileged
// variant set and any per-session preapproved tools are inputs, not code.
package approval

import (
	"github.com/neopilot-ai/neopilot/internal/contract"
)

// Decision is the outcome of awaiting approval for an action.
type Decision struct {
	Approved bool
	// Reason accompanies a rejection.
	Reason string
}

// Classification says whether an action may be emitted immediately.
type Classification int

const (
	// AutoApproved actions bypass the gate.
	AutoApproved Classification = iota
	// NeedsApproval actions are held until a decision arrives.
	NeedsApproval
)

// Classifier maps actions to classifications. Immutable once built; safe to
// share across sessions.
type Classifier struct {
	privileged map[contract.ActionVariant]bool
}

// NewClassifier builds a classifier from the configured privileged variant
// names. Unknown names are ignored: a variant that cannot be emitted cannot
// need approval.
func NewClassifier(privilegedVariants []string) *Classifier {
	privileged := make(map[contract.ActionVariant]bool, len(privilegedVariants))
	known := make(map[contract.ActionVariant]bool)
	for _, v := range contract.Variants() {
		known[v] = true
	}
	for _, name := range privilegedVariants {
		if v := contract.ActionVariant(name); known[v] {
			privileged[v] = true
		}
	}
	return &Classifier{privileged: privileged}
}

// Classify is a pure function of the action and the session's preapproved
// tool set. Tools in the preapproved set bypass the gate regardless of
// variant; otherwise the configured privileged-variant table decides.
func (c *Classifier) Classify(action contract.Action, preapproved map[string]bool) Classification {
	if action.Payload == nil {
		return AutoApproved
	}
	if preapproved[action.Payload.ToolName()] {
		return AutoApproved
	}
	if c.privileged[action.Payload.ActionVariant()] {
		return NeedsApproval
	}
	return AutoApproved
}

// PreapprovedSet converts a start request's preapproved tool list to a set.
func PreapprovedSet(tools []string) map[string]bool {
	set := make(map[string]bool, len(tools))
	for _, t := range tools {
		set[t] = true
	}
	return set
}
