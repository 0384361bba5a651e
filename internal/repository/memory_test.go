package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropguide/backend/pkg/models"
)

func TestMemoryStore_Farmers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	farmer := &models.Farmer{Email: "ravi@example.com"}
	require.NoError(t, store.CreateFarmer(ctx, farmer))
	assert.NotEmpty(t, farmer.ID)

	got, err := store.GetFarmerByEmail(ctx, "ravi@example.com")
	require.NoError(t, err)
	assert.Equal(t, farmer.ID, got.ID)

	updated, err := store.UpdateFarmerName(ctx, farmer.ID, "Ravi")
	require.NoError(t, err)
	assert.Equal(t, "Ravi", updated.Name)

	got.Name = "mutated"
	again, err := store.GetFarmer(ctx, farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ravi", again.Name, "returned records are copies")

	_, err = store.GetFarmer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.UpdateFarmerName(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentProvisioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ids := make([]string, 16)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			farmer := &models.Farmer{Email: "same@example.com"}
			if err := store.CreateFarmer(ctx, farmer); err == nil {
				ids[i] = farmer.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestMemoryStore_History(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, flow := range []string{"crop-question", "disease-detection", "crop-question"} {
		require.NoError(t, store.SaveHistory(ctx, &models.HistoryEntry{
			FarmerID:  "f1",
			Flow:      flow,
			Result:    map[string]any{"n": i},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.SaveHistory(ctx, &models.HistoryEntry{FarmerID: "f2", Flow: "crop-question"}))

	entries, err := store.ListHistory(ctx, "f1", HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].Result["n"])

	entries, err = store.ListHistory(ctx, "f1", HistoryFilter{Flow: "crop-question", Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Result["n"])

	removed, err := store.DeleteHistory(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	entries, err = store.ListHistory(ctx, "f2", HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "other farmers keep their history")
}

func TestHistoryFilter_Limit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, HistoryFilter{}.limit())
	assert.Equal(t, MaxHistoryLimit, HistoryFilter{Limit: 10_000}.limit())
	assert.Equal(t, 7, HistoryFilter{Limit: 7}.limit())
}
