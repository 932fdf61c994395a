package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/repository"
)

const stateTokenBytes = 32

// StateRegistry mints and redeems single-use anti-CSRF state tokens.
type StateRegistry struct {
	repo    repository.StateTokenRepository
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// StateRegistryConfig holds configuration for the state registry
type StateRegistryConfig struct {
	TTL     time.Duration    // Token lifetime (default: 5 minutes)
	Now     func() time.Time // Clock (default: time.Now)
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// NewStateRegistry creates a new state registry backed by repo
func NewStateRegistry(repo repository.StateTokenRepository, config StateRegistryConfig) *StateRegistry {
	if config.TTL <= 0 {
		config.TTL = domain.DefaultStateTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Noop{}
	}

	return &StateRegistry{
		repo:    repo,
		ttl:     config.TTL,
		now:     config.Now,
		logger:  config.Logger,
		metrics: config.Metrics,
	}
}

// TTL returns the configured token lifetime.
func (r *StateRegistry) TTL() time.Duration {
	return r.ttl
}

// Create mints and stores a new state token.
func (r *StateRegistry) Create(ctx context.Context) (domain.StateToken, error) {
	value, err := generateStateValue()
	if err != nil {
		return domain.StateToken{}, domain.NewInternalError("STATE_GENERATION_FAILED", "Failed to generate state", err)
	}

	token := domain.StateToken{Value: value, CreatedAt: r.now()}
	if err := r.repo.Save(ctx, &token, r.ttl); err != nil {
		return domain.StateToken{}, fmt.Errorf("failed to store state token: %w", err)
	}

	r.metrics.RecordStateToken("created")
	return token, nil
}

// Redeem consumes the token stored under value and reports whether it was valid.
// The entry is removed before the age check, so an expired token is consumed too.
func (r *StateRegistry) Redeem(ctx context.Context, value string) bool {
	if value == "" {
		r.metrics.RecordStateToken("rejected")
		return false
	}

	token, err := r.repo.Take(ctx, value)
	if err != nil {
		if !repository.IsNotFound(err) {
			r.logger.Error("State token lookup failed", "error", err)
		}
		r.metrics.RecordStateToken("rejected")
		return false
	}

	if token.ExpiredAt(r.now(), r.ttl) {
		r.logger.Debug("State token expired", "created_at", token.CreatedAt)
		r.metrics.RecordStateToken("expired")
		return false
	}

	r.metrics.RecordStateToken("redeemed")
	return true
}

// Sweep removes every stored token older than the TTL and returns how many were dropped.
func (r *StateRegistry) Sweep(ctx context.Context) (int, error) {
	return r.repo.DeleteExpired(ctx, r.now().Add(-r.ttl))
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (r *StateRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := r.Sweep(ctx)
				if err != nil {
					r.logger.Error("State token sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					r.logger.Debug("Swept expired state tokens", "removed", removed)
				}
			}
		}
	}()
}

// generateStateValue generates a cryptographically secure random state string
func generateStateValue() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
