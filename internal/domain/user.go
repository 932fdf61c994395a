package domain

import (
	"strings"
	"time"
)

// UserProfile is the locally cached view of an external identity.
type UserProfile struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityID builds the stable, provider-qualified key "<provider>:<providerUserId>".
func IdentityID(provider, providerUserID string) string {
	return provider + ":" + providerUserID
}

// DisplayName returns the name to show for the profile, falling back to the login.
func (u *UserProfile) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Login
}

// Validate validates the user profile.
func (u *UserProfile) Validate() error {
	if u.ID == "" {
		return NewValidationError("INVALID_ID", "Profile ID is required", map[string]interface{}{
			"field": "id",
		})
	}

	if u.Provider == "" || !strings.HasPrefix(u.ID, u.Provider+":") {
		return NewValidationError("INVALID_PROVIDER", "Profile ID must be qualified by its provider", map[string]interface{}{
			"field": "provider",
		})
	}

	if len(u.ID) == len(u.Provider)+1 {
		return NewValidationError("INVALID_ID", "Provider user ID is required", map[string]interface{}{
			"field": "id",
		})
	}

	return nil
}
