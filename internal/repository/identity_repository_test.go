package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

func TestMemoryIdentityRepository(t *testing.T) {
	t.Run("UpsertAndGet", func(t *testing.T) {
		repo := NewMemoryIdentityRepository()
		ctx := context.Background()

		profile := &domain.UserProfile{ID: "github:1", Provider: "github", Login: "octo", Name: "Octo"}
		require.NoError(t, repo.Upsert(ctx, profile))

		got, err := repo.GetByID(ctx, "github:1")
		require.NoError(t, err)
		assert.Equal(t, "octo", got.Login)
		assert.Equal(t, "Octo", got.Name)
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		repo := NewMemoryIdentityRepository()
		ctx := context.Background()

		require.NoError(t, repo.Upsert(ctx, &domain.UserProfile{ID: "github:1", Provider: "github", Login: "old"}))
		require.NoError(t, repo.Upsert(ctx, &domain.UserProfile{ID: "github:1", Provider: "github", Login: "new"}))

		got, err := repo.GetByID(ctx, "github:1")
		require.NoError(t, err)
		assert.Equal(t, "new", got.Login)

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("StoredCopyIsIsolated", func(t *testing.T) {
		repo := NewMemoryIdentityRepository()
		ctx := context.Background()

		profile := &domain.UserProfile{ID: "github:2", Provider: "github", Login: "before"}
		require.NoError(t, repo.Upsert(ctx, profile))
		profile.Login = "mutated"

		got, err := repo.GetByID(ctx, "github:2")
		require.NoError(t, err)
		assert.Equal(t, "before", got.Login)

		got.Login = "mutated again"
		again, err := repo.GetByID(ctx, "github:2")
		require.NoError(t, err)
		assert.Equal(t, "before", again.Login)
	})

	t.Run("GetMissing", func(t *testing.T) {
		repo := NewMemoryIdentityRepository()

		_, err := repo.GetByID(context.Background(), "github:404")
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.True(t, domain.HasCode(err, domain.CodeProfileNotFound))
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		repo := NewMemoryIdentityRepository()

		assert.Error(t, repo.Upsert(context.Background(), nil))
		assert.Error(t, repo.Upsert(context.Background(), &domain.UserProfile{ID: "nope", Provider: "github"}))
	})
}
