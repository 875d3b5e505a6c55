package payment

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresPurchaseRepository implements PurchaseRepository using PostgreSQL.
type PostgresPurchaseRepository struct {
	db *sql.DB
}

// NewPostgresPurchaseRepository creates a Postgres-backed purchase repository.
func NewPostgresPurchaseRepository(db *sql.DB) *PostgresPurchaseRepository {
	return &PostgresPurchaseRepository{db: db}
}

const purchaseColumns = `id, session_id, status, amount, item_type, item_id, buyer_id, created_at, updated_at`

func scanPurchase(row *sql.Row) (*PurchaseRecord, error) {
	var record PurchaseRecord
	err := row.Scan(
		&record.ID,
		&record.SessionID,
		&record.Status,
		&record.Amount,
		&record.ItemType,
		&record.ItemID,
		&record.BuyerID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to scan purchase record: %w", err)
	}
	return &record, nil
}

// Insert adds a new purchase record, assigning an id and timestamps if unset.
func (r *PostgresPurchaseRepository) Insert(record *PurchaseRecord) error {
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

	_, err := r.db.Exec(`
		INSERT INTO purchases (id, session_id, status, amount, item_type, item_id, buyer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.SessionID, record.Status, record.Amount,
		record.ItemType, record.ItemID, record.BuyerID,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert purchase record: %w", err)
	}
	return nil
}

// GetByID retrieves a purchase record by ID.
func (r *PostgresPurchaseRepository) GetByID(id string) (*PurchaseRecord, error) {
	row := r.db.QueryRow(`SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	return scanPurchase(row)
}

// GetBySessionID retrieves a purchase record by Stripe session ID.
func (r *PostgresPurchaseRepository) GetBySessionID(sessionID string) (*PurchaseRecord, error) {
	row := r.db.QueryRow(`SELECT `+purchaseColumns+` FROM purchases WHERE session_id = $1`, sessionID)
	return scanPurchase(row)
}

// Update updates the status of an existing purchase record.
func (r *PostgresPurchaseRepository) Update(record *PurchaseRecord) error {
	now := time.Now()
	record.UpdatedAt = &now

	result, err := r.db.Exec(`
		UPDATE purchases SET status = $1, updated_at = $2 WHERE id = $3`,
		record.Status, record.UpdatedAt, record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update purchase record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// PostgresWebhookRepository implements WebhookRepository using PostgreSQL.
// The unique constraint on event_id makes RecordEvent the idempotency gate.
type PostgresWebhookRepository struct {
	db *sql.DB
}

// NewPostgresWebhookRepository creates a Postgres-backed webhook repository.
func NewPostgresWebhookRepository(db *sql.DB) *PostgresWebhookRepository {
	return &PostgresWebhookRepository{db: db}
}

// RecordEvent records a webhook event as processed.
func (r *PostgresWebhookRepository) RecordEvent(eventID, eventType string) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_events (id, event_id, event_type, processed_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), eventID, eventType, time.Now(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrEventAlreadyProcessed
		}
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// HasProcessed checks if an event has already been processed.
func (r *PostgresWebhookRepository) HasProcessed(eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}
