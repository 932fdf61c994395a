package domain

import (
	"time"
)

// DefaultSessionTTL is the session token lifetime when none is configured.
const DefaultSessionTTL = time.Hour

// SessionClaims is the identity carried by a signed session token.
// Claims are never mutated after signing.
type SessionClaims struct {
	Subject   string    `json:"sub"`
	Name      string    `json:"name"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Validate validates the claims before signing.
func (c SessionClaims) Validate() error {
	if c.Subject == "" {
		return NewValidationError("INVALID_SUBJECT", "Subject is required", map[string]interface{}{
			"field": "sub",
		})
	}
	if c.IssuedAt.IsZero() || c.ExpiresAt.IsZero() {
		return NewValidationError("INVALID_TIMESTAMPS", "Issue and expiry times are required", nil)
	}
	if !c.ExpiresAt.After(c.IssuedAt) {
		return NewValidationError("INVALID_EXPIRY", "Expiry must be after issue time", map[string]interface{}{
			"field": "exp",
		})
	}
	return nil
}

// Identity returns the public identity attached to room events.
func (c SessionClaims) Identity() Identity {
	return Identity{ID: c.Subject, Name: c.Name}
}

// Identity is the sender/joiner identity exposed to other room members.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
