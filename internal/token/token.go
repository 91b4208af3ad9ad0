// Package token issues and verifies short-lived execution tokens. A token
// scopes what a client stream may do: which subject it acts as, which
// workflow it may drive, and which action variants it may receive.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed means the token is not in payload.signature form or the
	// payload is not valid JSON.
	ErrMalformed = errors.New("token: malformed")
	// ErrBadSignature means the signature does not match the payload.
	ErrBadSignature = errors.New("token: signature mismatch")
	// ErrExpired means the token's expiry has passed.
	ErrExpired = errors.New("token: expired")
)

// Clock interface for time operations (allows testing).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Claims is the signed payload of an execution token.
type Claims struct {
	// Subject identifies the principal the stream acts as.
	Subject string `json:"sub"`
	// WorkflowID is the only workflow this token may drive. Empty allows
	// any workflow.
	WorkflowID string `json:"workflowId,omitempty"`
	// AllowedVariants lists the action variants the stream may receive.
	// Empty allows all variants.
	AllowedVariants []string `json:"allowedVariants,omitempty"`
	// ExpiresAt is the Unix second after which the token is rejected.
	ExpiresAt int64 `json:"exp"`
}

// Allows reports whether the claims permit the given action variant.
func (c Claims) Allows(variant string) bool {
	if len(c.AllowedVariants) == 0 {
		return true
	}
	for _, v := range c.AllowedVariants {
		if v == variant {
			return true
		}
	}
	return false
}

// AllowsWorkflow reports whether the claims permit driving the given
// workflow.
func (c Claims) AllowsWorkflow(id string) bool {
	return c.WorkflowID == "" || c.WorkflowID == id
}

// IssuerConfig configures token issuance.
type IssuerConfig struct {
	// SigningKey signs and verifies tokens. Empty generates an ephemeral
	// key, which is fine for single-process deployments and tests.
	SigningKey string
	// TTL is how long issued tokens stay valid.
	TTL time.Duration
	// Clock is used for time operations (for testing).
	Clock Clock
}

// Issuer signs and verifies execution tokens with an HMAC-SHA256 key.
type Issuer struct {
	key   []byte
	ttl   time.Duration
	clock Clock
}

// NewIssuer creates an Issuer from the given configuration.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating ephemeral signing key: %w", err)
		}
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Issuer{key: key, ttl: ttl, clock: clock}, nil
}

// Issue signs claims for the given subject. The expiry is always set from
// the issuer's TTL, never taken from the caller.
func (i *Issuer) Issue(subject, workflowID string, allowedVariants []string) (string, Claims, error) {
	claims := Claims{
		Subject:         subject,
		WorkflowID:      workflowID,
		AllowedVariants: allowedVariants,
		ExpiresAt:       i.clock.Now().Add(i.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("encoding claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + i.sign(encoded), claims, nil
}

// Verify checks the signature and expiry and returns the claims.
func (i *Issuer) Verify(token string) (Claims, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return Claims{}, ErrMalformed
	}

	if !hmac.Equal([]byte(i.sign(encoded)), []byte(sig)) {
		return Claims{}, ErrBadSignature
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrMalformed
	}

	if i.clock.Now().Unix() >= claims.ExpiresAt {
		return Claims{}, ErrExpired
	}

	return claims, nil
}

func (i *Issuer) sign(encoded string) string {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
