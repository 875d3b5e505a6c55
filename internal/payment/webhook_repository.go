package payment

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEventAlreadyProcessed is returned when recording a duplicate webhook event.
var ErrEventAlreadyProcessed = errors.New("webhook event already processed")

// WebhookEvent is one processed webhook delivery.
type WebhookEvent struct {
	ID          string
	EventID     string // Stripe event ID
	EventType   string
	ProcessedAt time.Time
}

// WebhookRepository tracks processed webhook events. Stripe retries
// delivery, so slot promotion must only run once per event; RecordEvent is
// the idempotency gate.
type WebhookRepository interface {
	// RecordEvent marks an event as processed, returning
	// ErrEventAlreadyProcessed if it was recorded before.
	RecordEvent(eventID, eventType string) error

	// HasProcessed reports whether an event was already recorded.
	HasProcessed(eventID string) (bool, error)
}

// InMemoryWebhookRepository implements WebhookRepository with in-memory storage.
type InMemoryWebhookRepository struct {
	mu   sync.RWMutex
	seen map[string]WebhookEvent // keyed by Stripe event ID
}

// NewInMemoryWebhookRepository creates a new in-memory webhook repository.
func NewInMemoryWebhookRepository() *InMemoryWebhookRepository {
	return &InMemoryWebhookRepository{seen: make(map[string]WebhookEvent)}
}

// RecordEvent marks an event as processed.
func (r *InMemoryWebhookRepository) RecordEvent(eventID, eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[eventID]; dup {
		return ErrEventAlreadyProcessed
	}

	r.seen[eventID] = WebhookEvent{
		ID:          uuid.New().String(),
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: time.Now(),
	}
	return nil
}

// HasProcessed reports whether an event was already recorded.
func (r *InMemoryWebhookRepository) HasProcessed(eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.seen[eventID]
	return ok, nil
}
