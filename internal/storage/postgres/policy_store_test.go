package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

func TestPolicyStore_GetBeforePut(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPolicyStore(pool)

	_, err := store.Get(context.Background())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPolicyStore_PutReplaces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewPolicyStore(pool)
	ctx := context.Background()

	p := domain.DefaultPolicy()
	require.NoError(t, store.Put(ctx, &p))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, p, *got)

	p.DailySpendCap = 750
	p.AutoApply.ScaleBudget = false
	require.NoError(t, store.Put(ctx, &p))

	got, err = store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 750.0, got.DailySpendCap)
	require.False(t, got.AutoApply.ScaleBudget)
}
