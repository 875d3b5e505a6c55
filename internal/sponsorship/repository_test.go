package sponsorship

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/studx-dev/studx/internal/item"
)

func TestInMemoryPromoteAssignsSequentialSlots(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()
	ctx := context.Background()

	a1, err := repo.Promote(ctx, item.TypeProduct, "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1.Slot != 1 {
		t.Errorf("first promotion should get slot 1, got %d", a1.Slot)
	}

	a2, err := repo.Promote(ctx, item.TypeNote, "n1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a2.Slot != 2 {
		t.Errorf("second promotion should get slot 2, got %d", a2.Slot)
	}

	// Revoking the middle item must not reuse its slot.
	if err := repo.Revoke(ctx, item.TypeProduct, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a3, err := repo.Promote(ctx, item.TypeRoom, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a3.Slot != 3 {
		t.Errorf("expected slot 3 after revoke, got %d", a3.Slot)
	}
}

func TestInMemoryPromoteRejectsDuplicates(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()
	ctx := context.Background()

	if _, err := repo.Promote(ctx, item.TypeProduct, "p1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Promote(ctx, item.TypeProduct, "p1"); !errors.Is(err, ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}

	// The same id in a different collection is a different listing.
	if _, err := repo.Promote(ctx, item.TypeNote, "p1"); err != nil {
		t.Errorf("unexpected error for different type: %v", err)
	}
}

func TestInMemoryPromoteRejectsInvalidType(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()

	if _, err := repo.Promote(context.Background(), item.Type("bogus"), "x"); !errors.Is(err, item.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}

func TestInMemoryListOrdersBySlot(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()
	repo.Put(&Assignment{ItemID: "c", ItemType: item.TypeProduct, Slot: 3})
	repo.Put(&Assignment{ItemID: "a", ItemType: item.TypeProduct, Slot: 1})
	repo.Put(&Assignment{ItemID: "b", ItemType: item.TypeNote, Slot: 2})

	all, err := repo.List(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ItemID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, all[i].ItemID)
		}
	}

	products, err := repo.List(context.Background(), item.TypeProduct)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 product assignments, got %d", len(products))
	}
}

func TestInMemoryListRecentOrdersByCreation(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()
	now := time.Now()
	repo.Put(&Assignment{ItemID: "old", ItemType: item.TypeProduct, Slot: 1, CreatedAt: now.Add(-time.Hour)})
	repo.Put(&Assignment{ItemID: "new", ItemType: item.TypeNote, Slot: 2, CreatedAt: now})

	recent, err := repo.ListRecent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recent) != 2 || recent[0].ItemID != "new" {
		t.Errorf("expected newest first, got %+v", recent)
	}
}

func TestInMemoryRevokeMissing(t *testing.T) {
	repo := NewInMemoryAssignmentRepository()

	if err := repo.Revoke(context.Background(), item.TypeProduct, "ghost"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("expected ErrAssignmentNotFound, got %v", err)
	}
}
