package domain

import (
	"testing"
	"time"
)

func TestStateTokenExpiry(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token := &StateToken{Value: "abc", CreatedAt: created}

	tests := []struct {
		name    string
		now     time.Time
		expired bool
	}{
		{name: "just created", now: created, expired: false},
		{name: "one second before ttl", now: created.Add(DefaultStateTTL - time.Second), expired: false},
		{name: "exactly at ttl", now: created.Add(DefaultStateTTL), expired: true},
		{name: "long after ttl", now: created.Add(time.Hour), expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := token.ExpiredAt(tt.now, DefaultStateTTL); got != tt.expired {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestStateTokenValidate(t *testing.T) {
	if err := (&StateToken{CreatedAt: time.Now()}).Validate(); err == nil {
		t.Error("Expected error for empty value")
	}
	if err := (&StateToken{Value: "abc"}).Validate(); err == nil {
		t.Error("Expected error for zero creation time")
	}
	if err := (&StateToken{Value: "abc", CreatedAt: time.Now()}).Validate(); err != nil {
		t.Errorf("Expected valid token, got %v", err)
	}
}

func TestOAuthStageTransitions(t *testing.T) {
	tests := []struct {
		from OAuthStage
		to   OAuthStage
		ok   bool
	}{
		{StageInitiated, StageRedirected, true},
		{StageRedirected, StageExchanging, true},
		{StageExchanging, StageCompleted, true},
		{StageInitiated, StageFailed, true},
		{StageExchanging, StageFailed, true},
		{StageInitiated, StageCompleted, false},
		{StageRedirected, StageCompleted, false},
		{StageCompleted, StageFailed, false},
		{StageFailed, StageInitiated, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestUserProfileValidate(t *testing.T) {
	valid := &UserProfile{ID: IdentityID("github", "42"), Provider: "github", Login: "octo"}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid profile, got %v", err)
	}

	mismatched := &UserProfile{ID: "gitlab:42", Provider: "github"}
	if err := mismatched.Validate(); err == nil {
		t.Error("Expected error for provider mismatch")
	}

	empty := &UserProfile{ID: "github:", Provider: "github"}
	if err := empty.Validate(); err == nil {
		t.Error("Expected error for missing provider user id")
	}
}

func TestUserProfileDisplayName(t *testing.T) {
	profile := &UserProfile{Login: "octo"}
	if profile.DisplayName() != "octo" {
		t.Errorf("Expected login fallback, got %q", profile.DisplayName())
	}

	profile.Name = "The Octocat"
	if profile.DisplayName() != "The Octocat" {
		t.Errorf("Expected name, got %q", profile.DisplayName())
	}
}
