package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

func TestMemoryStateTokenRepository(t *testing.T) {
	t.Run("SaveAndTake", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()
		ctx := context.Background()

		token := &domain.StateToken{Value: "state-1", CreatedAt: time.Now()}
		require.NoError(t, repo.Save(ctx, token, time.Minute))

		taken, err := repo.Take(ctx, "state-1")
		require.NoError(t, err)
		assert.Equal(t, token.Value, taken.Value)
		assert.True(t, token.CreatedAt.Equal(taken.CreatedAt))
	})

	t.Run("TakeIsSingleUse", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()
		ctx := context.Background()

		require.NoError(t, repo.Save(ctx, &domain.StateToken{Value: "once", CreatedAt: time.Now()}, time.Minute))

		_, err := repo.Take(ctx, "once")
		require.NoError(t, err)

		_, err = repo.Take(ctx, "once")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("TakeUnknown", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()

		_, err := repo.Take(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, domain.HasCode(err, "STATE_NOT_FOUND"))
	})

	t.Run("SaveRejectsCollision", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()
		ctx := context.Background()

		token := &domain.StateToken{Value: "dup", CreatedAt: time.Now()}
		require.NoError(t, repo.Save(ctx, token, time.Minute))
		assert.Error(t, repo.Save(ctx, token, time.Minute))
	})

	t.Run("SaveRejectsInvalid", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()

		err := repo.Save(context.Background(), &domain.StateToken{CreatedAt: time.Now()}, time.Minute)
		assert.Error(t, err)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()
		ctx := context.Background()
		now := time.Now()

		require.NoError(t, repo.Save(ctx, &domain.StateToken{Value: "old", CreatedAt: now.Add(-10 * time.Minute)}, time.Minute))
		require.NoError(t, repo.Save(ctx, &domain.StateToken{Value: "fresh", CreatedAt: now}, time.Minute))

		removed, err := repo.DeleteExpired(ctx, now.Add(-5*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		_, err = repo.Take(ctx, "old")
		assert.Error(t, err)
		_, err = repo.Take(ctx, "fresh")
		assert.NoError(t, err)
	})

	t.Run("ConcurrentTakeSucceedsOnce", func(t *testing.T) {
		repo := NewMemoryStateTokenRepository()
		ctx := context.Background()

		require.NoError(t, repo.Save(ctx, &domain.StateToken{Value: "race", CreatedAt: time.Now()}, time.Minute))

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Take(ctx, "race"); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins)
	})
}
