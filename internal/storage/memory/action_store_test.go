package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

func TestActionStore_OpenByCampaignKind(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	action := &domain.Action{
		ID:         "act1",
		Kind:       domain.ActionPause,
		CampaignID: "camp1",
		ExecutedAt: 1000,
		Success:    true,
	}
	if err := store.InsertTrimmed(ctx, action, 50); err != nil {
		t.Fatalf("InsertTrimmed failed: %v", err)
	}

	open, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionPause)
	if err != nil {
		t.Fatalf("OpenByCampaignKind failed: %v", err)
	}
	if open.ID != "act1" {
		t.Errorf("expected act1, got %s", open.ID)
	}

	// Different kind is a free slot
	if _, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionScaleBudget); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other kind, got %v", err)
	}
}

func TestActionStore_ResolveOpen(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	action := &domain.Action{
		ID:         "act1",
		Kind:       domain.ActionScaleBudget,
		CampaignID: "camp1",
	}
	if err := store.InsertTrimmed(ctx, action, 50); err != nil {
		t.Fatalf("InsertTrimmed failed: %v", err)
	}

	if err := store.ResolveOpen(ctx, "camp1", domain.ActionScaleBudget); err != nil {
		t.Fatalf("ResolveOpen failed: %v", err)
	}

	if _, err := store.OpenByCampaignKind(ctx, "camp1", domain.ActionScaleBudget); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected slot freed after resolve, got %v", err)
	}
}

func TestActionStore_Trim(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		action := &domain.Action{
			ID:         fmt.Sprintf("act%d", i),
			Kind:       domain.ActionPause,
			CampaignID: fmt.Sprintf("camp%d", i),
			ExecutedAt: int64(i),
		}
		if err := store.InsertTrimmed(ctx, action, 50); err != nil {
			t.Fatalf("InsertTrimmed %d failed: %v", i, err)
		}
	}

	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 50 {
		t.Errorf("expected 50 retained actions, got %d", len(list))
	}
	if list[0].ID != "act59" {
		t.Errorf("newest first expected act59, got %s", list[0].ID)
	}
}
