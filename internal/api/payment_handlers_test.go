package api

import (
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

// stubStripeClient records the last checkout params and returns a canned
// session.
type stubStripeClient struct {
	lastParams *payment.CheckoutParams
	err        error
}

func (c *stubStripeClient) CreateCheckoutSession(params *payment.CheckoutParams) (*stripe.CheckoutSession, error) {
	c.lastParams = params
	if c.err != nil {
		return nil, c.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/pay/cs_test_123"}, nil
}

func newPaymentFixture(t *testing.T, client payment.Client) (*PaymentHandlers, *payment.InMemoryPurchaseRepository, *apiFixture) {
	t.Helper()
	f := newAPIFixture(t)
	purchases := payment.NewInMemoryPurchaseRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPaymentHandlers(client, purchases, f.items, 49900,
		"https://studx.example/sponsor/success", "https://studx.example/sponsor/cancel", logger)
	return h, purchases, f
}

func checkoutRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/sponsorships/checkout", strings.NewReader(body))
}

func TestCheckoutCreatesPendingPurchase(t *testing.T) {
	client := &stubStripeClient{}
	h, purchases, f := newPaymentFixture(t, client)
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")

	rec := httptest.NewRecorder()
	h.Checkout(rec, checkoutRequest(`{"item_type":"regular","item_id":"p1","buyer_id":"u1"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != "cs_test_123" {
		t.Errorf("unexpected session id %q", resp.SessionID)
	}
	if resp.CheckoutURL == "" {
		t.Error("expected a checkout URL")
	}

	if client.lastParams == nil {
		t.Fatal("expected checkout session to be created")
	}
	if client.lastParams.AmountCents != 49900 {
		t.Errorf("expected amount 49900, got %d", client.lastParams.AmountCents)
	}
	if client.lastParams.ItemType != string(item.TypeProduct) {
		t.Errorf("expected item type product, got %s", client.lastParams.ItemType)
	}

	record, err := purchases.GetBySessionID("cs_test_123")
	if err != nil {
		t.Fatalf("expected purchase record: %v", err)
	}
	if record.Status != payment.StatusPending {
		t.Errorf("expected pending status, got %s", record.Status)
	}
	if record.ItemID != "p1" || record.BuyerID != "u1" {
		t.Errorf("unexpected record %+v", record)
	}
}

func TestCheckoutDisabledWithoutClient(t *testing.T) {
	h, _, f := newPaymentFixture(t, nil)
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")

	rec := httptest.NewRecorder()
	h.Checkout(rec, checkoutRequest(`{"item_type":"regular","item_id":"p1","buyer_id":"u1"}`))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != ErrCodePaymentsDisabled {
		t.Errorf("expected code %s, got %s", ErrCodePaymentsDisabled, resp.Error.Code)
	}
}

func TestCheckoutValidation(t *testing.T) {
	h, _, f := newPaymentFixture(t, &stubStripeClient{})
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `not json`, http.StatusBadRequest},
		{"missing item_id", `{"item_type":"regular","buyer_id":"u1"}`, http.StatusBadRequest},
		{"missing buyer_id", `{"item_type":"regular","item_id":"p1"}`, http.StatusBadRequest},
		{"unknown type", `{"item_type":"vehicle","item_id":"p1","buyer_id":"u1"}`, http.StatusBadRequest},
		{"missing listing", `{"item_type":"regular","item_id":"ghost","buyer_id":"u1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Checkout(rec, checkoutRequest(tt.body))
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCheckoutStripeFailure(t *testing.T) {
	h, purchases, f := newPaymentFixture(t, &stubStripeClient{err: errors.New("stripe unavailable")})
	f.addListing(t, item.TypeProduct, "p1", "Lamp", "furniture")

	rec := httptest.NewRecorder()
	h.Checkout(rec, checkoutRequest(`{"item_type":"regular","item_id":"p1","buyer_id":"u1"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if _, err := purchases.GetBySessionID("cs_test_123"); !errors.Is(err, payment.ErrPurchaseNotFound) {
		t.Errorf("no purchase should be recorded on failure, got %v", err)
	}
}

func TestCheckoutMethodNotAllowed(t *testing.T) {
	h, _, _ := newPaymentFixture(t, &stubStripeClient{})

	rec := httptest.NewRecorder()
	h.Checkout(rec, httptest.NewRequest(http.MethodGet, "/sponsorships/checkout", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
