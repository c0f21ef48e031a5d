package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

func testExecution(id string, startedAt int64) *domain.PipelineExecution {
	return &domain.PipelineExecution{
		ID: id,
		Config: domain.AutomationConfig{
			Budget:   150,
			Niche:    domain.NicheWhite,
			Keywords: []string{"yoga mats"},
		},
		Stage:       domain.StageCompleted,
		ProgressPct: 100,
		Status:      domain.StatusCompleted,
		PartialResults: domain.PartialResults{
			SelectedOffer: &domain.CandidateOffer{ID: "off1", Title: "Premium Mat", Score: 95},
			CampaignID:    "camp1",
		},
		StartedAt: startedAt,
		EndedAt:   startedAt + 5000,
	}
}

func TestExecutionStore_AppendAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExecutionStore(pool)
	ctx := context.Background()

	e := testExecution("exec1", 1000)
	require.NoError(t, store.AppendTrimmed(ctx, e, 10))

	got, err := store.GetByID(ctx, "exec1")
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)
	require.Equal(t, domain.StatusCompleted, got.Status)
	require.Equal(t, 100, got.ProgressPct)
	require.Equal(t, domain.NicheWhite, got.Config.Niche)
	require.Equal(t, []string{"yoga mats"}, got.Config.Keywords)
	require.NotNil(t, got.PartialResults.SelectedOffer)
	require.Equal(t, "off1", got.PartialResults.SelectedOffer.ID)

	require.ErrorIs(t, store.AppendTrimmed(ctx, e, 10), storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "exec_missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecutionStore_TrimKeepsNewest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewExecutionStore(pool)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		e := testExecution(fmt.Sprintf("exec%d", i), int64(1000+i))
		require.NoError(t, store.AppendTrimmed(ctx, e, 10))
	}

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 10)
	require.Equal(t, "exec11", list[0].ID)
	require.Equal(t, "exec2", list[9].ID)

	// The oldest two were trimmed away.
	_, err = store.GetByID(ctx, "exec0")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
