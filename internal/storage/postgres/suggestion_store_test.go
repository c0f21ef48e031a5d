package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

func testSuggestion(id, campaignID string, createdAt int64) *domain.Suggestion {
	return &domain.Suggestion{
		ID:              id,
		Kind:            domain.ActionCreativeSwap,
		Priority:        domain.PriorityHigh,
		CampaignID:      campaignID,
		Rationale:       "CTR 0.50% below minimum 1.00%",
		EstimatedImpact: "refresh creatives to recover click-through",
		CreatedAt:       createdAt,
	}
}

func TestSuggestionStore_ApplyFreesSlot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSuggestionStore(pool)
	ctx := context.Background()

	sg := testSuggestion("sug1", "camp1", 1000)
	require.NoError(t, store.InsertTrimmed(ctx, sg, 50))

	open, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionCreativeSwap)
	require.NoError(t, err)
	require.Equal(t, "sug1", open.ID)

	require.NoError(t, store.MarkApplied(ctx, "sug1"))

	_, err = store.OpenByCampaignKind(ctx, "camp1", domain.ActionCreativeSwap)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Applied suggestions stay retrievable by id.
	got, err := store.GetByID(ctx, "sug1")
	require.NoError(t, err)
	require.True(t, got.Applied)

	listed, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestSuggestionStore_DeleteAndMissing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSuggestionStore(pool)
	ctx := context.Background()

	sg := testSuggestion("sug1", "camp1", 1000)
	require.NoError(t, store.InsertTrimmed(ctx, sg, 50))

	require.NoError(t, store.Delete(ctx, "sug1"))
	require.ErrorIs(t, store.Delete(ctx, "sug1"), storage.ErrNotFound)
	require.ErrorIs(t, store.MarkApplied(ctx, "sug1"), storage.ErrNotFound)

	_, err := store.GetByID(ctx, "sug1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSuggestionStore_ListOpenNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewSuggestionStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertTrimmed(ctx, testSuggestion("sug1", "camp1", 1000), 50))
	require.NoError(t, store.InsertTrimmed(ctx, testSuggestion("sug2", "camp2", 2000), 50))
	require.NoError(t, store.InsertTrimmed(ctx, testSuggestion("sug3", "camp3", 3000), 50))
	require.NoError(t, store.MarkApplied(ctx, "sug2"))

	listed, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "sug3", listed[0].ID)
	require.Equal(t, "sug1", listed[1].ID)
}
