package domain

import (
	"time"
)

// DefaultStateTTL bounds how long a login attempt may take between redirect and callback.
const DefaultStateTTL = 5 * time.Minute

// StateToken is a one-time anti-CSRF value carried across the provider redirect.
type StateToken struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate validates the StateToken
func (s *StateToken) Validate() error {
	if s.Value == "" {
		return NewValidationError("INVALID_STATE_VALUE", "State value is required", map[string]interface{}{
			"field": "value",
		})
	}
	if s.CreatedAt.IsZero() {
		return NewValidationError("INVALID_CREATED_AT", "Creation time is required", map[string]interface{}{
			"field": "created_at",
		})
	}
	return nil
}

// ExpiredAt reports whether the token is older than ttl at the given instant.
func (s *StateToken) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return !now.Before(s.CreatedAt.Add(ttl))
}

// OAuthStage is a step of a single login attempt.
type OAuthStage string

// OAuth flow stages. A flow moves forward only; Failed is terminal from any stage.
const (
	StageInitiated  OAuthStage = "initiated"
	StageRedirected OAuthStage = "redirected"
	StageExchanging OAuthStage = "exchanging"
	StageCompleted  OAuthStage = "completed"
	StageFailed     OAuthStage = "failed"
)

// String returns the string representation of the stage
func (s OAuthStage) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s OAuthStage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OAuthStage) CanTransitionTo(next OAuthStage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}

	switch s {
	case StageInitiated:
		return next == StageRedirected
	case StageRedirected:
		return next == StageExchanging
	case StageExchanging:
		return next == StageCompleted
	default:
		return false
	}
}
