package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/middleware"
	"github.com/studx-dev/studx/internal/payment"
	"github.com/studx-dev/studx/internal/sponsorship"
)

// maxWebhookBodyBytes caps webhook payload reads.
const maxWebhookBodyBytes = 65536

// signatureVerifier validates a raw webhook payload. Swappable for tests.
type signatureVerifier func(payload []byte, header, secret string) (stripe.Event, error)

// WebhookHandlers processes Stripe webhook events for slot purchases.
type WebhookHandlers struct {
	webhookSecret string
	purchases     payment.PurchaseRepository
	webhookRepo   payment.WebhookRepository
	assignments   sponsorship.AssignmentRepository
	logger        *slog.Logger
	verify        signatureVerifier
}

// NewWebhookHandlers creates a new WebhookHandlers instance.
func NewWebhookHandlers(
	webhookSecret string,
	purchases payment.PurchaseRepository,
	webhookRepo payment.WebhookRepository,
	assignments sponsorship.AssignmentRepository,
	logger *slog.Logger,
) *WebhookHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandlers{
		webhookSecret: webhookSecret,
		purchases:     purchases,
		webhookRepo:   webhookRepo,
		assignments:   assignments,
		logger:        logger,
		verify:        webhook.ConstructEvent,
	}
}

// HandleStripeWebhook processes Stripe webhook events with signature verification.
// POST /webhooks/stripe
func (h *WebhookHandlers) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "missing Stripe-Signature header")
		return
	}

	event, err := h.verify(body, signature, h.webhookSecret)
	if err != nil {
		h.logger.WarnContext(ctx, "webhook signature verification failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "invalid signature")
		return
	}

	// Log minimal event info (type and ID only, not full payload)
	h.logger.InfoContext(ctx, "webhook event received", "event_type", event.Type, "event_id", event.ID)

	// Stripe retries delivery; each event must only be applied once.
	if err := h.webhookRepo.RecordEvent(event.ID, string(event.Type)); err != nil {
		if errors.Is(err, payment.ErrEventAlreadyProcessed) {
			h.logger.InfoContext(ctx, "webhook event already processed, ignoring", "event_id", event.ID)
			// Return 200 to acknowledge receipt even though we're ignoring it
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.ErrorContext(ctx, "failed to record webhook event", "event_id", event.ID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to process webhook")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutSessionCompleted(ctx, event)
	case "checkout.session.expired":
		h.handleCheckoutSessionExpired(ctx, event)
	default:
		// Unknown event type - log and ignore
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type", "event_type", event.Type, "event_id", event.ID)
	}

	// Always return 200 to acknowledge receipt
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutSessionCompleted marks the purchase succeeded and promotes
// the paid listing into the sponsored rotation.
func (h *WebhookHandlers) handleCheckoutSessionCompleted(ctx context.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse checkout session", "event_id", event.ID, "error", err)
		return
	}

	record, err := h.purchases.GetBySessionID(session.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get purchase record", "session_id", session.ID, "error", err)
		return
	}

	record.Status = payment.StatusSucceeded
	if err := h.purchases.Update(record); err != nil {
		h.logger.ErrorContext(ctx, "failed to update purchase record", "session_id", session.ID, "error", err)
		return
	}

	itemType := item.Type(record.ItemType)
	assignment, err := h.assignments.Promote(ctx, itemType, record.ItemID)
	if err != nil {
		if errors.Is(err, sponsorship.ErrDuplicateItem) {
			// Already sponsored (e.g. promoted manually between checkout and
			// webhook delivery). The payment still stands.
			h.logger.WarnContext(ctx, "paid listing already sponsored",
				"item_type", record.ItemType, "item_id", record.ItemID)
			return
		}
		h.logger.ErrorContext(ctx, "failed to promote paid listing",
			"item_type", record.ItemType, "item_id", record.ItemID, "error", err)
		return
	}

	h.logger.InfoContext(ctx, "paid listing promoted",
		"session_id", session.ID,
		"item_type", record.ItemType,
		"item_id", record.ItemID,
		"slot", assignment.Slot)
}

// handleCheckoutSessionExpired marks abandoned purchases canceled.
func (h *WebhookHandlers) handleCheckoutSessionExpired(ctx context.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.ErrorContext(ctx, "failed to parse checkout session", "event_id", event.ID, "error", err)
		return
	}

	record, err := h.purchases.GetBySessionID(session.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get purchase record", "session_id", session.ID, "error", err)
		return
	}

	record.Status = payment.StatusCanceled
	if err := h.purchases.Update(record); err != nil {
		h.logger.ErrorContext(ctx, "failed to update purchase record", "session_id", session.ID, "error", err)
	}
}
