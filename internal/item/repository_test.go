package item

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryGetByID(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Put(TypeProduct, &Item{ID: "1", Title: "Laptop", CreatedAt: time.Now()})
	ctx := context.Background()

	got, err := repo.GetByID(ctx, TypeProduct, "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Title != "Laptop" {
		t.Errorf("expected Laptop, got %s", got.Title)
	}

	// Returned items are copies.
	got.Title = "mutated"
	again, _ := repo.GetByID(ctx, TypeProduct, "1")
	if again.Title != "Laptop" {
		t.Error("repository must not leak internal state")
	}

	if _, err := repo.GetByID(ctx, TypeNote, "1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong type, got %v", err)
	}
	if _, err := repo.GetByID(ctx, Type("bogus"), "1"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}

func TestInMemoryDelete(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Put(TypeRoom, &Item{ID: "r1", Title: "Single Room", CreatedAt: time.Now()})
	repo.Delete(TypeRoom, "r1")

	if _, err := repo.GetByID(context.Background(), TypeRoom, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestInMemoryListFeatured(t *testing.T) {
	repo := NewInMemoryRepository()
	now := time.Now()
	repo.Put(TypeProduct, &Item{ID: "old", Featured: true, CreatedAt: now.Add(-time.Hour)})
	repo.Put(TypeProduct, &Item{ID: "new", Featured: true, CreatedAt: now})
	repo.Put(TypeProduct, &Item{ID: "plain", CreatedAt: now})
	repo.Put(TypeNote, &Item{ID: "note", Featured: true, CreatedAt: now})

	got, err := repo.ListFeatured(context.Background(), TypeProduct, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 featured products, got %d", len(got))
	}
	if got[0].ID != "new" {
		t.Errorf("expected newest first, got %s", got[0].ID)
	}

	limited, err := repo.ListFeatured(context.Background(), TypeProduct, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestInMemorySearch(t *testing.T) {
	repo := NewInMemoryRepository()
	now := time.Now()
	repo.Put(TypeProduct, &Item{ID: "p1", Title: "Gaming Laptop", CreatedAt: now})
	repo.Put(TypeProduct, &Item{ID: "p2", Title: "Desk", Description: "fits a laptop", CreatedAt: now.Add(-time.Minute)})
	repo.Put(TypeNote, &Item{ID: "n1", Title: "Laptop repair notes", CreatedAt: now.Add(-2 * time.Minute)})
	repo.Put(TypeRoom, &Item{ID: "r1", Title: "Single Room", CreatedAt: now})

	ctx := context.Background()

	all, err := repo.Search(ctx, "", "laptop", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 matches across collections, got %d", len(all))
	}

	products, err := repo.Search(ctx, TypeProduct, "LAPTOP", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("expected 2 case-insensitive product matches, got %d", len(products))
	}
	if products[0].ID != "p1" {
		t.Errorf("expected newest match first, got %s", products[0].ID)
	}

	if _, err := repo.Search(ctx, Type("bogus"), "laptop", 10); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}
