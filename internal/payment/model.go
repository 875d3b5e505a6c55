// Package payment provides Stripe integration for sponsorship slot purchases.
package payment

import "time"

// Purchase status values.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// PurchaseRecord is a provisional record for a sponsorship slot purchase.
// It is created when a Checkout Session is opened and resolved by the Stripe
// webhook; the sponsorship assignment itself is only created once the
// purchase succeeds.
type PurchaseRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"` // Stripe Checkout Session ID
	Status    string     `json:"status"`     // pending, succeeded, failed, canceled
	Amount    int64      `json:"amount"`     // Slot price in cents
	ItemType  string     `json:"item_type"`  // Listing collection being sponsored
	ItemID    string     `json:"item_id"`    // Listing being sponsored
	BuyerID   string     `json:"buyer_id"`   // User paying for the slot
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
