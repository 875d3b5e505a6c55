package sponsorship

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/tracing"
)

// Common errors for assignment operations.
var (
	ErrAssignmentNotFound = errors.New("sponsorship assignment not found")
	ErrDuplicateItem      = errors.New("item is already sponsored")
)

// AssignmentRepository defines persistence for sponsorship assignments.
type AssignmentRepository interface {
	// List returns assignments ordered by slot ascending.
	// An empty itemType returns assignments for all item types.
	List(ctx context.Context, itemType item.Type) ([]*Assignment, error)

	// ListRecent returns all assignments ordered by creation time, newest
	// first. Used by the homepage featured rail.
	ListRecent(ctx context.Context) ([]*Assignment, error)

	// Promote creates an assignment for the item at the next available slot
	// (max existing slot + 1, or 1 if the rotation is empty).
	// Returns ErrDuplicateItem if the item is already sponsored.
	Promote(ctx context.Context, itemType item.Type, itemID string) (*Assignment, error)

	// Revoke removes the assignment for the given item.
	// Returns ErrAssignmentNotFound if no assignment exists.
	Revoke(ctx context.Context, itemType item.Type, itemID string) error
}

// PostgresAssignmentRepository implements AssignmentRepository over PostgreSQL.
type PostgresAssignmentRepository struct {
	db *sql.DB
}

// NewPostgresAssignmentRepository creates a new PostgresAssignmentRepository.
func NewPostgresAssignmentRepository(db *sql.DB) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{db: db}
}

const assignmentColumns = "id, item_id, item_type, slot, created_at"

// List returns assignments ordered by slot ascending.
func (r *PostgresAssignmentRepository) List(ctx context.Context, itemType item.Type) ([]*Assignment, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "sponsorship_sequences", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := "SELECT " + assignmentColumns + " FROM sponsorship_sequences ORDER BY slot ASC"
	args := []any{}
	if itemType != "" {
		if !itemType.Valid() {
			err = item.ErrInvalidType
			return nil, err
		}
		query = "SELECT " + assignmentColumns + " FROM sponsorship_sequences WHERE item_type = $1 ORDER BY slot ASC"
		args = append(args, string(itemType))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListRecent returns all assignments, newest first.
func (r *PostgresAssignmentRepository) ListRecent(ctx context.Context) ([]*Assignment, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "sponsorship_sequences", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM sponsorship_sequences ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list recent assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// Promote inserts an assignment at the next available slot. The slot is
// computed inside the insert so concurrent promotions cannot pick the same
// slot; the unique constraint on (item_type, item_id) enforces one active
// assignment per item.
func (r *PostgresAssignmentRepository) Promote(ctx context.Context, itemType item.Type, itemID string) (*Assignment, error) {
	if !itemType.Valid() {
		return nil, item.ErrInvalidType
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "sponsorship_sequences", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	a := &Assignment{
		ID:       uuid.New().String(),
		ItemID:   itemID,
		ItemType: itemType,
	}
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO sponsorship_sequences (id, item_id, item_type, slot)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(slot), 0) + 1 FROM sponsorship_sequences))
		RETURNING slot, created_at`,
		a.ID, a.ItemID, string(a.ItemType),
	).Scan(&a.Slot, &a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			err = ErrDuplicateItem
			return nil, ErrDuplicateItem
		}
		return nil, fmt.Errorf("failed to promote %s %s: %w", itemType, itemID, err)
	}
	return a, nil
}

// Revoke removes the assignment for the given item.
func (r *PostgresAssignmentRepository) Revoke(ctx context.Context, itemType item.Type, itemID string) error {
	if !itemType.Valid() {
		return item.ErrInvalidType
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "sponsorship_sequences", tracing.DBOperationDelete)
	var err error
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx,
		"DELETE FROM sponsorship_sequences WHERE item_type = $1 AND item_id = $2",
		string(itemType), itemID)
	if err != nil {
		return fmt.Errorf("failed to revoke %s %s: %w", itemType, itemID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		err = ErrAssignmentNotFound
		return ErrAssignmentNotFound
	}
	return nil
}

func collectAssignments(rows *sql.Rows) ([]*Assignment, error) {
	var assignments []*Assignment
	for rows.Next() {
		var a Assignment
		var itemType string
		if err := rows.Scan(&a.ID, &a.ItemID, &itemType, &a.Slot, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.ItemType = item.Type(itemType)
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

// InMemoryAssignmentRepository is an in-memory implementation of
// AssignmentRepository. Thread-safe via RWMutex.
type InMemoryAssignmentRepository struct {
	mu          sync.RWMutex
	assignments map[string]*Assignment // "{type}-{id}" -> Assignment
}

// NewInMemoryAssignmentRepository creates a new in-memory assignment repository.
func NewInMemoryAssignmentRepository() *InMemoryAssignmentRepository {
	return &InMemoryAssignmentRepository{
		assignments: make(map[string]*Assignment),
	}
}

func usedKey(itemType item.Type, itemID string) string {
	return string(itemType) + "-" + itemID
}

// Put stores an assignment as-is, overwriting any existing one for the same
// item. Intended for test setup.
func (r *InMemoryAssignmentRepository) Put(a *Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *a
	if copied.ID == "" {
		copied.ID = uuid.New().String()
	}
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	r.assignments[usedKey(a.ItemType, a.ItemID)] = &copied
}

// List returns assignments ordered by slot ascending.
func (r *InMemoryAssignmentRepository) List(ctx context.Context, itemType item.Type) ([]*Assignment, error) {
	if itemType != "" && !itemType.Valid() {
		return nil, item.ErrInvalidType
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var assignments []*Assignment
	for _, a := range r.assignments {
		if itemType != "" && a.ItemType != itemType {
			continue
		}
		copied := *a
		assignments = append(assignments, &copied)
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Slot < assignments[j].Slot
	})
	return assignments, nil
}

// ListRecent returns all assignments, newest first.
func (r *InMemoryAssignmentRepository) ListRecent(ctx context.Context) ([]*Assignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var assignments []*Assignment
	for _, a := range r.assignments {
		copied := *a
		assignments = append(assignments, &copied)
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].CreatedAt.After(assignments[j].CreatedAt)
	})
	return assignments, nil
}

// Promote creates an assignment at the next available slot.
func (r *InMemoryAssignmentRepository) Promote(ctx context.Context, itemType item.Type, itemID string) (*Assignment, error) {
	if !itemType.Valid() {
		return nil, item.ErrInvalidType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := usedKey(itemType, itemID)
	if _, exists := r.assignments[key]; exists {
		return nil, ErrDuplicateItem
	}

	nextSlot := 1
	for _, a := range r.assignments {
		if a.Slot >= nextSlot {
			nextSlot = a.Slot + 1
		}
	}

	a := &Assignment{
		ID:        uuid.New().String(),
		ItemID:    itemID,
		ItemType:  itemType,
		Slot:      nextSlot,
		CreatedAt: time.Now(),
	}
	r.assignments[key] = a

	copied := *a
	return &copied, nil
}

// Revoke removes the assignment for the given item.
func (r *InMemoryAssignmentRepository) Revoke(ctx context.Context, itemType item.Type, itemID string) error {
	if !itemType.Valid() {
		return item.ErrInvalidType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := usedKey(itemType, itemID)
	if _, exists := r.assignments[key]; !exists {
		return ErrAssignmentNotFound
	}
	delete(r.assignments, key)
	return nil
}
