package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// memoryStateTokenRepository provides an in-memory implementation of StateTokenRepository.
type memoryStateTokenRepository struct {
	tokens map[string]domain.StateToken
	mutex  sync.Mutex
}

// NewMemoryStateTokenRepository creates a new in-memory state token repository.
func NewMemoryStateTokenRepository() StateTokenRepository {
	return &memoryStateTokenRepository{
		tokens: make(map[string]domain.StateToken),
	}
}

// Save stores a state token. Expiry is enforced by the caller and by DeleteExpired.
func (r *memoryStateTokenRepository) Save(_ context.Context, token *domain.StateToken, _ time.Duration) error {
	if err := token.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.tokens[token.Value]; exists {
		return domain.NewInternalError("STATE_COLLISION", "State token already exists", nil)
	}
	r.tokens[token.Value] = *token

	return nil
}

// Take removes and returns a state token in one critical section.
func (r *memoryStateTokenRepository) Take(_ context.Context, value string) (*domain.StateToken, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	token, exists := r.tokens[value]
	if !exists {
		return nil, NewStateTokenNotFoundError()
	}
	delete(r.tokens, value)

	return &token, nil
}

// DeleteExpired deletes all state tokens created before cutoff
func (r *memoryStateTokenRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	removed := 0
	for value, token := range r.tokens {
		if token.CreatedAt.Before(cutoff) {
			delete(r.tokens, value)
			removed++
		}
	}

	return removed, nil
}
