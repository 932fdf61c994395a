package services

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/repository"
)

func newTestStateRegistry(clock *fakeClock) *StateRegistry {
	return NewStateRegistry(repository.NewMemoryStateTokenRepository(), StateRegistryConfig{
		TTL:    domain.DefaultStateTTL,
		Now:    clock.Now,
		Logger: discardLogger(),
	})
}

func TestStateRegistry(t *testing.T) {
	t.Run("CreateProducesRandomURLSafeValues", func(t *testing.T) {
		registry := newTestStateRegistry(newFakeClock())
		ctx := context.Background()

		seen := make(map[string]bool)
		for i := 0; i < 50; i++ {
			token, err := registry.Create(ctx)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(token.Value)
			require.NoError(t, err)
			assert.Len(t, raw, 32)
			assert.False(t, seen[token.Value], "duplicate state value")
			seen[token.Value] = true
		}
	})

	t.Run("RedeemSucceedsOnce", func(t *testing.T) {
		registry := newTestStateRegistry(newFakeClock())
		ctx := context.Background()

		token, err := registry.Create(ctx)
		require.NoError(t, err)

		assert.True(t, registry.Redeem(ctx, token.Value))
		assert.False(t, registry.Redeem(ctx, token.Value))
	})

	t.Run("RedeemUnknownAndEmpty", func(t *testing.T) {
		registry := newTestStateRegistry(newFakeClock())

		assert.False(t, registry.Redeem(context.Background(), "never-issued"))
		assert.False(t, registry.Redeem(context.Background(), ""))
	})

	t.Run("ExpiryBoundary", func(t *testing.T) {
		clock := newFakeClock()
		registry := newTestStateRegistry(clock)
		ctx := context.Background()

		fresh, err := registry.Create(ctx)
		require.NoError(t, err)
		stale, err := registry.Create(ctx)
		require.NoError(t, err)

		clock.Advance(domain.DefaultStateTTL - time.Second)
		assert.True(t, registry.Redeem(ctx, fresh.Value))

		clock.Advance(time.Second)
		assert.False(t, registry.Redeem(ctx, stale.Value))
	})

	t.Run("ExpiredTokenIsConsumed", func(t *testing.T) {
		clock := newFakeClock()
		repo := repository.NewMemoryStateTokenRepository()
		registry := NewStateRegistry(repo, StateRegistryConfig{Now: clock.Now, Logger: discardLogger()})
		ctx := context.Background()

		token, err := registry.Create(ctx)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		assert.False(t, registry.Redeem(ctx, token.Value))

		_, err = repo.Take(ctx, token.Value)
		assert.True(t, repository.IsNotFound(err))
	})

	t.Run("ConcurrentRedeemHasOneWinner", func(t *testing.T) {
		registry := newTestStateRegistry(newFakeClock())
		ctx := context.Background()

		token, err := registry.Create(ctx)
		require.NoError(t, err)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if registry.Redeem(ctx, token.Value) {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
	})

	t.Run("SweepRemovesExpired", func(t *testing.T) {
		clock := newFakeClock()
		registry := newTestStateRegistry(clock)
		ctx := context.Background()

		_, err := registry.Create(ctx)
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
		kept, err := registry.Create(ctx)
		require.NoError(t, err)

		removed, err := registry.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.True(t, registry.Redeem(ctx, kept.Value))
	})

	t.Run("SweeperStopsWithContext", func(t *testing.T) {
		registry := newTestStateRegistry(newFakeClock())
		ctx, cancel := context.WithCancel(context.Background())

		registry.StartSweeper(ctx, time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		cancel()
	})

	t.Run("RedisBackend", func(t *testing.T) {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		defer client.Close()

		clock := newFakeClock()
		registry := NewStateRegistry(repository.NewRedisStateTokenRepository(client, ""), StateRegistryConfig{
			Now:    clock.Now,
			Logger: discardLogger(),
		})
		ctx := context.Background()

		token, err := registry.Create(ctx)
		require.NoError(t, err)
		assert.True(t, registry.Redeem(ctx, token.Value))
		assert.False(t, registry.Redeem(ctx, token.Value))
	})

	t.Run("StorageFailureRejects", func(t *testing.T) {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		defer client.Close()

		registry := NewStateRegistry(repository.NewRedisStateTokenRepository(client, ""), StateRegistryConfig{
			Logger: discardLogger(),
		})
		ctx := context.Background()

		token, err := registry.Create(ctx)
		require.NoError(t, err)

		server.Close()
		assert.False(t, registry.Redeem(ctx, token.Value))
	})
}
