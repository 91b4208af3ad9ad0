package security

import (
	"errors"
	"fmt"

	"github.com/neopilot-ai/neopilot/internal/log"
)

// RedactedPlaceholder replaces a payload whose sanitization failed. The
// pipeline fails closed: unsanitized content never reaches agent context.
const RedactedPlaceholder = "[redacted: tool response failed security processing]"

// ErrSanitizationFailed wraps any transform failure.
var ErrSanitizationFailed = errors.New("sanitization failed")

// Pipeline applies a policy's transform chains to tool responses. It is
// immutable after construction and safe for concurrent use by all sessions.
type Pipeline struct {
	policy   *Policy
	registry map[string]Transform
}

// NewPipeline builds a pipeline from a validated policy.
func NewPipeline(policy *Policy) *Pipeline {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Pipeline{policy: policy, registry: Registry()}
}

// Policy returns the policy the pipeline was built from.
func (p *Pipeline) Policy() *Policy { return p.policy }

// Apply runs the tool's configured transform chain over payload and returns
// the sanitized value. On any transform error it returns RedactedPlaceholder
// and an error wrapping ErrSanitizationFailed; callers log and continue, the
// session does not fail.
func (p *Pipeline) Apply(toolName string, payload any) (any, error) {
	sanitized := payload
	for _, name := range p.policy.ChainFor(toolName) {
		transform, ok := p.registry[name]
		if !ok {
			// Unreachable for loaded policies, which validate names. Guards
			// hand-constructed Policy values.
			log.Error(log.CatSecurity, "Unknown transform in policy chain", "tool", toolName, "transform", name)
			return RedactedPlaceholder, fmt.Errorf("%w: unknown transform %q", ErrSanitizationFailed, name)
		}

		var err error
		sanitized, err = transform(sanitized)
		if err != nil {
			log.ErrorErr(log.CatSecurity, "Transform failed, redacting payload", err,
				"tool", toolName,
				"transform", name,
			)
			return RedactedPlaceholder, fmt.Errorf("%w: transform %q for tool %q: %v", ErrSanitizationFailed, name, toolName, err)
		}
	}
	return sanitized, nil
}

// ApplyString is Apply for the common case of plain-text tool output.
func (p *Pipeline) ApplyString(toolName, payload string) (string, error) {
	sanitized, err := p.Apply(toolName, payload)
	if err != nil {
		return RedactedPlaceholder, err
	}
	s, ok := sanitized.(string)
	if !ok {
		// Transforms preserve structure; a string in must come out a string.
		return RedactedPlaceholder, fmt.Errorf("%w: transform changed payload type to %T", ErrSanitizationFailed, sanitized)
	}
	return s, nil
}
