// Package repository provides data access interfaces following SOLID principles.
package repository

import (
	"context"
	"time"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// StateTokenRepository defines the interface for anti-CSRF state token storage.
type StateTokenRepository interface {
	// Save stores a new state token that expires after ttl
	Save(ctx context.Context, token *domain.StateToken, ttl time.Duration) error

	// Take atomically removes and returns the token stored under value.
	// Returns a NotFound error when no such token exists.
	Take(ctx context.Context, value string) (*domain.StateToken, error)

	// DeleteExpired removes tokens created before cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// NewStateTokenNotFoundError is returned by Take for unknown or already redeemed values.
func NewStateTokenNotFoundError() *domain.DomainError {
	return domain.NewNotFoundError("STATE_NOT_FOUND", "State token not found")
}
