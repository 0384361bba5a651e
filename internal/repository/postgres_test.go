package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"cropguide/backend/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "schema is idempotent")
	require.NoError(t, store.Ping(ctx))

	farmer := &models.Farmer{Email: "asha@example.com", Name: "Asha"}

	t.Run("Create and Get farmer", func(t *testing.T) {
		require.NoError(t, store.CreateFarmer(ctx, farmer))
		assert.NotEmpty(t, farmer.ID)

		byEmail, err := store.GetFarmerByEmail(ctx, "asha@example.com")
		require.NoError(t, err)
		assert.Equal(t, farmer.ID, byEmail.ID)

		byID, err := store.GetFarmer(ctx, farmer.ID)
		require.NoError(t, err)
		assert.Equal(t, "Asha", byID.Name)

		again := &models.Farmer{Email: "asha@example.com", Name: "Someone else"}
		require.NoError(t, store.CreateFarmer(ctx, again))
		assert.Equal(t, farmer.ID, again.ID)
		assert.Equal(t, "Asha", again.Name)
	})

	t.Run("Missing farmer", func(t *testing.T) {
		_, err := store.GetFarmerByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.GetFarmer(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update name", func(t *testing.T) {
		updated, err := store.UpdateFarmerName(ctx, farmer.ID, "Asha Patil")
		require.NoError(t, err)
		assert.Equal(t, "Asha Patil", updated.Name)
		assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))
	})

	t.Run("History round trip", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		for i, flow := range []string{"crop-question", "growth-stage", "crop-question"} {
			entry := &models.HistoryEntry{
				FarmerID:  farmer.ID,
				Flow:      flow,
				Request:   map[string]any{"query": "q"},
				Result:    map[string]any{"answer": "a", "n": float64(i)},
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}
			require.NoError(t, store.SaveHistory(ctx, entry))
			assert.NotEmpty(t, entry.ID)
		}

		all, err := store.ListHistory(ctx, farmer.ID, HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, float64(2), all[0].Result["n"], "newest first")
		assert.Equal(t, map[string]any{"query": "q"}, all[0].Request)

		questions, err := store.ListHistory(ctx, farmer.ID, HistoryFilter{Flow: "crop-question", Limit: 1})
		require.NoError(t, err)
		require.Len(t, questions, 1)
		assert.Equal(t, "crop-question", questions[0].Flow)

		removed, err := store.DeleteHistory(ctx, farmer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)

		all, err = store.ListHistory(ctx, farmer.ID, HistoryFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
