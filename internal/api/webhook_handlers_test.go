package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v81"
	"github.com/studx-dev/studx/internal/item"
	"github.com/studx-dev/studx/internal/payment"
)

type webhookFixture struct {
	handlers  *WebhookHandlers
	purchases *payment.InMemoryPurchaseRepository
	api       *apiFixture
}

// newWebhookFixture wires webhook handlers with a verifier that decodes the
// payload as a raw event instead of checking Stripe signatures.
func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := newAPIFixture(t)
	purchases := payment.NewInMemoryPurchaseRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := NewWebhookHandlers("whsec_test", purchases, payment.NewInMemoryWebhookRepository(), f.assignments, logger)
	h.verify = func(payload []byte, header, secret string) (stripe.Event, error) {
		if header != "valid" {
			return stripe.Event{}, errors.New("bad signature")
		}
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, err
		}
		return event, nil
	}

	return &webhookFixture{handlers: h, purchases: purchases, api: f}
}

func (f *webhookFixture) post(t *testing.T, signature, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	f.handlers.HandleStripeWebhook(rec, req)
	return rec
}

func checkoutEvent(id, eventType, sessionID string) string {
	return `{"id":"` + id + `","type":"` + eventType + `","data":{"object":{"id":"` + sessionID + `"}}}`
}

func TestWebhookRequiresSignature(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, "", checkoutEvent("evt_1", "checkout.session.completed", "cs_1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without signature header, got %d", rec.Code)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, "forged", checkoutEvent("evt_1", "checkout.session.completed", "cs_1"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid signature, got %d", rec.Code)
	}
}

func TestWebhookCompletedPromotesListing(t *testing.T) {
	f := newWebhookFixture(t)
	f.api.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")
	f.purchases.Insert(&payment.PurchaseRecord{
		SessionID: "cs_1",
		Status:    payment.StatusPending,
		Amount:    49900,
		ItemType:  string(item.TypeProduct),
		ItemID:    "p1",
		BuyerID:   "u1",
	})

	rec := f.post(t, "valid", checkoutEvent("evt_1", "checkout.session.completed", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	record, err := f.purchases.GetBySessionID("cs_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != payment.StatusSucceeded {
		t.Errorf("expected succeeded status, got %s", record.Status)
	}

	assignments, err := f.api.assignments.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(assignments))
	}
	if assignments[0].ItemID != "p1" || assignments[0].Slot != 1 {
		t.Errorf("unexpected assignment %+v", assignments[0])
	}
}

func TestWebhookDuplicateEventAppliedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	f.api.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")
	f.purchases.Insert(&payment.PurchaseRecord{
		SessionID: "cs_1",
		Status:    payment.StatusPending,
		ItemType:  string(item.TypeProduct),
		ItemID:    "p1",
	})

	body := checkoutEvent("evt_1", "checkout.session.completed", "cs_1")
	if rec := f.post(t, "valid", body); rec.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", rec.Code)
	}
	// Stripe retries the same event; the redelivery is acknowledged but
	// must not promote again.
	if rec := f.post(t, "valid", body); rec.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", rec.Code)
	}

	assignments, err := f.api.assignments.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 1 {
		t.Errorf("expected exactly 1 assignment after redelivery, got %d", len(assignments))
	}
}

func TestWebhookCompletedAlreadySponsored(t *testing.T) {
	f := newWebhookFixture(t)
	f.api.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")
	f.api.promote(t, item.TypeProduct, "p1")
	f.purchases.Insert(&payment.PurchaseRecord{
		SessionID: "cs_1",
		Status:    payment.StatusPending,
		ItemType:  string(item.TypeProduct),
		ItemID:    "p1",
	})

	rec := f.post(t, "valid", checkoutEvent("evt_1", "checkout.session.completed", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Payment still marked succeeded even though the slot already existed.
	record, err := f.purchases.GetBySessionID("cs_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != payment.StatusSucceeded {
		t.Errorf("expected succeeded status, got %s", record.Status)
	}
}

func TestWebhookExpiredCancelsPurchase(t *testing.T) {
	f := newWebhookFixture(t)
	f.purchases.Insert(&payment.PurchaseRecord{
		SessionID: "cs_1",
		Status:    payment.StatusPending,
		ItemType:  string(item.TypeProduct),
		ItemID:    "p1",
	})

	rec := f.post(t, "valid", checkoutEvent("evt_1", "checkout.session.expired", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	record, err := f.purchases.GetBySessionID("cs_1")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != payment.StatusCanceled {
		t.Errorf("expected canceled status, got %s", record.Status)
	}
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.post(t, "valid", checkoutEvent("evt_1", "invoice.paid", "cs_1"))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for unhandled event type, got %d", rec.Code)
	}

	assignments, err := f.api.assignments.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 {
		t.Errorf("expected no assignments, got %d", len(assignments))
	}
}
