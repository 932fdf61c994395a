package repository

import (
	"context"
	"sync"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// IdentityRepository defines the interface for cached user profiles.
// There is no delete path: profiles live for the lifetime of the process.
type IdentityRepository interface {
	// Upsert inserts or overwrites the profile keyed by its ID
	Upsert(ctx context.Context, profile *domain.UserProfile) error

	// GetByID retrieves a profile by its provider-qualified ID
	GetByID(ctx context.Context, id string) (*domain.UserProfile, error)

	// Count returns the number of cached profiles
	Count(ctx context.Context) (int, error)
}

// memoryIdentityRepository provides an in-memory implementation of IdentityRepository.
type memoryIdentityRepository struct {
	profiles map[string]domain.UserProfile
	mutex    sync.RWMutex
}

// NewMemoryIdentityRepository creates a new in-memory identity repository.
func NewMemoryIdentityRepository() IdentityRepository {
	return &memoryIdentityRepository{
		profiles: make(map[string]domain.UserProfile),
	}
}

// Upsert stores a copy of the profile; the last write for an ID wins.
func (r *memoryIdentityRepository) Upsert(_ context.Context, profile *domain.UserProfile) error {
	if profile == nil {
		return domain.NewValidationError("NIL_PROFILE", "Profile cannot be nil", nil)
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.profiles[profile.ID] = *profile

	return nil
}

// GetByID returns a copy of the stored profile
func (r *memoryIdentityRepository) GetByID(_ context.Context, id string) (*domain.UserProfile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	profile, exists := r.profiles[id]
	if !exists {
		return nil, domain.NewNotFoundError(domain.CodeProfileNotFound, "Profile not found")
	}

	return &profile, nil
}

// Count returns the number of cached profiles
func (r *memoryIdentityRepository) Count(_ context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.profiles), nil
}
