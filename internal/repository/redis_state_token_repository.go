package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// DefaultStateKeyPrefix namespaces state tokens in a shared redis database.
const DefaultStateKeyPrefix = "roomgate:state:"

// redisStateTokenRepository stores state tokens in redis with native key expiry.
type redisStateTokenRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisStateTokenRepository creates a redis-backed state token repository.
func NewRedisStateTokenRepository(client *redis.Client, prefix string) StateTokenRepository {
	if prefix == "" {
		prefix = DefaultStateKeyPrefix
	}
	return &redisStateTokenRepository{
		client: client,
		prefix: prefix,
	}
}

// Save stores the creation time under the state value. SETNX guards against collisions.
func (r *redisStateTokenRepository) Save(ctx context.Context, token *domain.StateToken, ttl time.Duration) error {
	if err := token.Validate(); err != nil {
		return err
	}

	created := strconv.FormatInt(token.CreatedAt.UnixNano(), 10)
	ok, err := r.client.SetNX(ctx, r.prefix+token.Value, created, ttl).Result()
	if err != nil {
		return domain.NewInternalError("STATE_SAVE_FAILED", "Failed to store state token", err)
	}
	if !ok {
		return domain.NewInternalError("STATE_COLLISION", "State token already exists", nil)
	}

	return nil
}

// Take uses GETDEL so that two concurrent redemptions cannot both succeed.
func (r *redisStateTokenRepository) Take(ctx context.Context, value string) (*domain.StateToken, error) {
	raw, err := r.client.GetDel(ctx, r.prefix+value).Result()
	if errors.Is(err, redis.Nil) {
		return nil, NewStateTokenNotFoundError()
	}
	if err != nil {
		return nil, domain.NewInternalError("STATE_TAKE_FAILED", "Failed to redeem state token", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, domain.NewInternalError("STATE_CORRUPT", "Stored state token is malformed", err)
	}

	return &domain.StateToken{
		Value:     value,
		CreatedAt: time.Unix(0, nanos),
	}, nil
}

// DeleteExpired is a no-op: redis evicts keys when their TTL elapses.
func (r *redisStateTokenRepository) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
