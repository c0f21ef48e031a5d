package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

func testAction(id, campaignID string, kind domain.ActionKind, executedAt int64) *domain.Action {
	return &domain.Action{
		ID:         id,
		Kind:       kind,
		CampaignID: campaignID,
		Before:     "ACTIVE",
		After:      "PAUSED",
		ExecutedAt: executedAt,
		Success:    true,
		Reason:     "ROAS 0.50 below minimum 1.50",
	}
}

func TestActionStore_OpenSlotLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActionStore(pool)
	ctx := context.Background()

	// The slot starts free.
	_, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionPause)
	require.ErrorIs(t, err, storage.ErrNotFound)

	a := testAction("act1", "camp1", domain.ActionPause, 1000)
	require.NoError(t, store.InsertTrimmed(ctx, a, 50))

	open, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionPause)
	require.NoError(t, err)
	require.Equal(t, "act1", open.ID)
	require.False(t, open.Resolved)

	// A different kind does not occupy the slot.
	_, err = store.OpenByCampaignKind(ctx, "camp1", domain.ActionScaleBudget)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.ResolveOpen(ctx, "camp1", domain.ActionPause))
	_, err = store.OpenByCampaignKind(ctx, "camp1", domain.ActionPause)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// Resolving a free slot is a no-op.
	require.NoError(t, store.ResolveOpen(ctx, "camp1", domain.ActionPause))
}

func TestActionStore_DuplicateAndTrim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewActionStore(pool)
	ctx := context.Background()

	a := testAction("act1", "camp1", domain.ActionPause, 1000)
	require.NoError(t, store.InsertTrimmed(ctx, a, 50))
	require.ErrorIs(t, store.InsertTrimmed(ctx, a, 50), storage.ErrDuplicateKey)

	for i := 2; i <= 55; i++ {
		b := testAction(fmt.Sprintf("act%d", i), fmt.Sprintf("camp%d", i), domain.ActionPause, int64(1000+i))
		require.NoError(t, store.InsertTrimmed(ctx, b, 50))
	}

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 50)
	require.Equal(t, "act55", list[0].ID)
}
