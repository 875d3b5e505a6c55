package item

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/studx-dev/studx/internal/tracing"
)

// Repository defines read access to the listing collections.
type Repository interface {
	// GetByID fetches a single listing by type and id.
	// Returns ErrNotFound if no row matches.
	GetByID(ctx context.Context, itemType Type, id string) (*Item, error)

	// ListFeatured returns up to limit listings of the given type flagged
	// featured=true, newest first. Used by the legacy featured fallback.
	ListFeatured(ctx context.Context, itemType Type, limit int) ([]*Item, error)

	// Search returns listings whose title or description matches the query,
	// newest first. An empty itemType searches all three collections.
	Search(ctx context.Context, itemType Type, query string, limit int) ([]*Item, error)
}

// PostgresRepository implements Repository over PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// itemColumns is the shared column list for all three collections. The
// variant columns exist on every table (NULL where not applicable) so a
// single scan path covers products, notes, and rooms.
const itemColumns = "id, title, description, category, price, college, featured, created_at, occupancy, room_type, subject, course"

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var college sql.NullString
	err := row.Scan(
		&it.ID, &it.Title, &it.Description, &it.Category, &it.Price,
		&college, &it.Featured, &it.CreatedAt,
		&it.Occupancy, &it.RoomType, &it.Subject, &it.Course,
	)
	if err != nil {
		return nil, err
	}
	it.College = college.String
	return &it, nil
}

// GetByID fetches a single listing by type and id.
func (r *PostgresRepository) GetByID(ctx context.Context, itemType Type, id string) (*Item, error) {
	if !itemType.Valid() {
		return nil, ErrInvalidType
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, itemType.Table(), tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", itemColumns, itemType.Table())
	it, err := scanItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		err = ErrNotFound
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", itemType, id, err)
	}
	return it, nil
}

// ListFeatured returns up to limit featured listings of the given type, newest first.
func (r *PostgresRepository) ListFeatured(ctx context.Context, itemType Type, limit int) ([]*Item, error) {
	if !itemType.Valid() {
		return nil, ErrInvalidType
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, itemType.Table(), tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE featured = true ORDER BY created_at DESC LIMIT $1",
		itemColumns, itemType.Table(),
	)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured %s: %w", itemType.Table(), err)
	}
	defer rows.Close()

	items, err := collectItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan featured %s: %w", itemType.Table(), err)
	}
	return items, nil
}

// Search returns listings matching the query by title or description.
func (r *PostgresRepository) Search(ctx context.Context, itemType Type, query string, limit int) ([]*Item, error) {
	types := []Type{TypeProduct, TypeNote, TypeRoom}
	if itemType != "" {
		if !itemType.Valid() {
			return nil, ErrInvalidType
		}
		types = []Type{itemType}
	}

	pattern := "%" + strings.ToLower(query) + "%"
	var results []*Item
	for _, t := range types {
		items, err := r.searchTable(ctx, t, pattern, limit)
		if err != nil {
			return nil, err
		}
		results = append(results, items...)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *PostgresRepository) searchTable(ctx context.Context, itemType Type, pattern string, limit int) ([]*Item, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, itemType.Table(), tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE lower(title) LIKE $1 OR lower(description) LIKE $1 ORDER BY created_at DESC LIMIT $2",
		itemColumns, itemType.Table(),
	)
	rows, err := r.db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", itemType.Table(), err)
	}
	defer rows.Close()

	items, err := collectItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s search results: %w", itemType.Table(), err)
	}
	return items, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Item // "{type}_{id}" -> Item
}

// NewInMemoryRepository creates a new in-memory item repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		items: make(map[string]*Item),
	}
}

func memKey(itemType Type, id string) string {
	return string(itemType) + "_" + id
}

// Put stores a listing under the given type. Intended for test setup.
func (r *InMemoryRepository) Put(itemType Type, it *Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *it
	r.items[memKey(itemType, it.ID)] = &copied
}

// Delete removes a listing. Intended for test setup.
func (r *InMemoryRepository) Delete(itemType Type, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, memKey(itemType, id))
}

// GetByID fetches a single listing by type and id.
func (r *InMemoryRepository) GetByID(ctx context.Context, itemType Type, id string) (*Item, error) {
	if !itemType.Valid() {
		return nil, ErrInvalidType
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[memKey(itemType, id)]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *it
	return &copied, nil
}

// ListFeatured returns up to limit featured listings of the given type.
func (r *InMemoryRepository) ListFeatured(ctx context.Context, itemType Type, limit int) ([]*Item, error) {
	if !itemType.Valid() {
		return nil, ErrInvalidType
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Item
	prefix := string(itemType) + "_"
	for key, it := range r.items {
		if !it.Featured || !strings.HasPrefix(key, prefix) {
			continue
		}
		copied := *it
		items = append(items, &copied)
	}
	sortByCreatedDesc(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Search returns listings matching the query by title or description.
func (r *InMemoryRepository) Search(ctx context.Context, itemType Type, query string, limit int) ([]*Item, error) {
	if itemType != "" && !itemType.Valid() {
		return nil, ErrInvalidType
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	var items []*Item
	for key, it := range r.items {
		if itemType != "" && !strings.HasPrefix(key, string(itemType)+"_") {
			continue
		}
		if strings.Contains(strings.ToLower(it.Title), q) ||
			strings.Contains(strings.ToLower(it.Description), q) {
			copied := *it
			items = append(items, &copied)
		}
	}
	sortByCreatedDesc(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func sortByCreatedDesc(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
