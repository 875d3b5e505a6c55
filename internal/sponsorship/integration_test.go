//go:build integration

package sponsorship

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/studx-dev/studx/internal/item"
)

// setupPostgres starts a disposable Postgres container and applies the
// migrations from the repository root.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("studx_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	applyMigrations(t, db)
	return db
}

// applyMigrations runs every up migration in lexical order.
func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()

	paths, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.up.sql"))
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no migrations found")
	}
	sort.Strings(paths)

	for _, path := range paths {
		contents, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read %s: %v", path, err)
		}
		if _, err := db.Exec(string(contents)); err != nil {
			t.Fatalf("failed to apply %s: %v", path, err)
		}
	}
}

func insertProduct(t *testing.T, db *sql.DB, title, category string) string {
	t.Helper()
	var id string
	err := db.QueryRow(`
		INSERT INTO products (title, description, category)
		VALUES ($1, '', $2)
		RETURNING id`, title, category).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
	return id
}

func TestPostgresAssignmentRepository_PromoteAssignsSequentialSlots(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresAssignmentRepository(db)
	ctx := context.Background()

	id1 := insertProduct(t, db, "Lamp", "furniture")
	id2 := insertProduct(t, db, "Bike", "vehicles")

	first, err := repo.Promote(ctx, item.TypeProduct, id1)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if first.Slot != 1 {
		t.Errorf("expected slot 1, got %d", first.Slot)
	}

	second, err := repo.Promote(ctx, item.TypeProduct, id2)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if second.Slot != 2 {
		t.Errorf("expected slot 2, got %d", second.Slot)
	}

	all, err := repo.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(all))
	}
	if all[0].Slot != 1 || all[1].Slot != 2 {
		t.Errorf("expected slot order 1, 2; got %d, %d", all[0].Slot, all[1].Slot)
	}
}

func TestPostgresAssignmentRepository_DuplicatePromotion(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresAssignmentRepository(db)
	ctx := context.Background()

	id := insertProduct(t, db, "Lamp", "furniture")

	if _, err := repo.Promote(ctx, item.TypeProduct, id); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if _, err := repo.Promote(ctx, item.TypeProduct, id); !errors.Is(err, ErrDuplicateItem) {
		t.Errorf("expected ErrDuplicateItem, got %v", err)
	}
}

func TestPostgresAssignmentRepository_RevokeAndRepromote(t *testing.T) {
	db := setupPostgres(t)
	repo := NewPostgresAssignmentRepository(db)
	ctx := context.Background()

	id1 := insertProduct(t, db, "Lamp", "furniture")
	id2 := insertProduct(t, db, "Bike", "vehicles")

	if _, err := repo.Promote(ctx, item.TypeProduct, id1); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if err := repo.Revoke(ctx, item.TypeProduct, id1); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	// MAX(slot) only sees live rows, so clearing the rotation restarts
	// slot numbering at 1.
	a, err := repo.Promote(ctx, item.TypeProduct, id2)
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if a.Slot != 1 {
		t.Errorf("expected slot 1 after rotation cleared, got %d", a.Slot)
	}

	if err := repo.Revoke(ctx, item.TypeProduct, id1); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("expected ErrAssignmentNotFound, got %v", err)
	}
}

func TestPostgresItemRepository_RoundTrip(t *testing.T) {
	db := setupPostgres(t)
	repo := item.NewPostgresRepository(db)
	ctx := context.Background()

	id := insertProduct(t, db, "Calculus textbook", "books")

	got, err := repo.GetByID(ctx, item.TypeProduct, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Calculus textbook" || got.Category != "books" {
		t.Errorf("unexpected listing %+v", got)
	}

	if _, err := repo.GetByID(ctx, item.TypeProduct, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, item.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	results, err := repo.Search(ctx, item.TypeProduct, "calculus", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != id {
		t.Errorf("expected the textbook in search results, got %+v", results)
	}
}
