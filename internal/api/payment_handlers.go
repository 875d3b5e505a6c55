package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/payment"
)

// PaymentHandlers serves the sponsorship slot purchase endpoint.
type PaymentHandlers struct {
	stripeClient payment.Client
	purchases    payment.PurchaseRepository
	items        item.Repository
	priceCents   int64
	successURL   string
	cancelURL    string
	logger       *slog.Logger
}

// NewPaymentHandlers creates payment handlers. stripeClient may be nil when
// slot purchases are not configured, in which case checkout requests are
// rejected.
func NewPaymentHandlers(
	stripeClient payment.Client,
	purchases payment.PurchaseRepository,
	items item.Repository,
	priceCents int64,
	successURL, cancelURL string,
	logger *slog.Logger,
) *PaymentHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandlers{
		stripeClient: stripeClient,
		purchases:    purchases,
		items:        items,
		priceCents:   priceCents,
		successURL:   successURL,
		cancelURL:    cancelURL,
		logger:       logger,
	}
}

// CheckoutRequest is the body for POST /sponsorships/checkout.
type CheckoutRequest struct {
	ItemType string `json:"item_type"` // client-facing type name
	ItemID   string `json:"item_id"`
	BuyerID  string `json:"buyer_id"`
}

// CheckoutResponse returns the Stripe-hosted checkout URL.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// Checkout handles POST /sponsorships/checkout.
//
// Opens a Stripe Checkout Session for a sponsorship slot and records a
// pending purchase. The slot itself is only assigned when the webhook
// confirms payment.
func (h *PaymentHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	if h.stripeClient == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePaymentsDisabled)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodePaymentsDisabled, "Slot purchases are not configured")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
		return
	}
	if req.ItemID == "" || req.BuyerID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "item_id and buyer_id are required")
		return
	}

	itemType, err := item.ParseDisplay(req.ItemType)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidItemType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidItemType, "Unknown listing type: "+req.ItemType)
		return
	}

	if _, err := h.items.GetByID(r.Context(), itemType, req.ItemID); err != nil {
		if errors.Is(err, item.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeItemNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeItemNotFound, "Listing not found")
			return
		}
		h.logger.Error("failed to resolve listing", "item_type", itemType, "item_id", req.ItemID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to resolve listing")
		return
	}

	sess, err := h.stripeClient.CreateCheckoutSession(&payment.CheckoutParams{
		ItemType:    string(itemType),
		ItemID:      req.ItemID,
		BuyerID:     req.BuyerID,
		AmountCents: h.priceCents,
		SuccessURL:  h.successURL,
		CancelURL:   h.cancelURL,
	})
	if err != nil {
		h.logger.Error("failed to create checkout session", "item_id", req.ItemID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to create checkout session")
		return
	}

	record := &payment.PurchaseRecord{
		SessionID: sess.ID,
		Status:    payment.StatusPending,
		Amount:    h.priceCents,
		ItemType:  string(itemType),
		ItemID:    req.ItemID,
		BuyerID:   req.BuyerID,
	}
	if err := h.purchases.Insert(record); err != nil {
		h.logger.Error("failed to record purchase", "session_id", sess.ID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record purchase")
		return
	}

	h.logger.Info("checkout session created",
		"session_id", sess.ID,
		"item_type", itemType,
		"item_id", req.ItemID)

	writeJSON(w, http.StatusCreated, CheckoutResponse{SessionID: sess.ID, CheckoutURL: sess.URL})
}
