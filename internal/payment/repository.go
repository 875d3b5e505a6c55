// Package payment provides repositories for purchase record persistence.
package payment

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPurchaseNotFound is returned when a purchase record is not found.
var ErrPurchaseNotFound = errors.New("purchase record not found")

// PurchaseRepository defines methods for purchase record persistence.
type PurchaseRepository interface {
	Insert(record *PurchaseRecord) error
	GetByID(id string) (*PurchaseRecord, error)
	GetBySessionID(sessionID string) (*PurchaseRecord, error)
	Update(record *PurchaseRecord) error
}

// InMemoryPurchaseRepository implements PurchaseRepository with in-memory storage.
type InMemoryPurchaseRepository struct {
	mu      sync.RWMutex
	records map[string]*PurchaseRecord
}

// NewInMemoryPurchaseRepository creates a new in-memory purchase repository.
func NewInMemoryPurchaseRepository() *InMemoryPurchaseRepository {
	return &InMemoryPurchaseRepository{
		records: make(map[string]*PurchaseRecord),
	}
}

// Insert adds a new purchase record, assigning an id and timestamps if unset.
func (r *InMemoryPurchaseRepository) Insert(record *PurchaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}

	// Deep copy to prevent external mutation
	copied := *record
	r.records[record.ID] = &copied

	return nil
}

// GetByID retrieves a purchase record by ID.
func (r *InMemoryPurchaseRepository) GetByID(id string) (*PurchaseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}

	copied := *record
	return &copied, nil
}

// GetBySessionID retrieves a purchase record by Stripe session ID.
func (r *InMemoryPurchaseRepository) GetBySessionID(sessionID string) (*PurchaseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.SessionID == sessionID {
			copied := *record
			return &copied, nil
		}
	}

	return nil, ErrPurchaseNotFound
}

// Update updates an existing purchase record.
func (r *InMemoryPurchaseRepository) Update(record *PurchaseRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; !ok {
		return ErrPurchaseNotFound
	}

	now := time.Now()
	record.UpdatedAt = &now

	copied := *record
	r.records[record.ID] = &copied

	return nil
}
