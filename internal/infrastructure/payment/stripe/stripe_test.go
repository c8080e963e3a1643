package stripe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	gostripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const testSecret = "whsec_test"

// ---------------------------------------------------------------------------
// Webhook parsing
// ---------------------------------------------------------------------------

func sessionEvent(id, typ, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "type": %q,
  "api_version": "2020-08-27",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "payment_status": %q,
    "payment_intent": "pi_test_1"
  }}
}`, id, typ, paymentStatus))
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

func TestEventParser_Mapping(t *testing.T) {
	p := NewEventParser(testSecret)

	cases := []struct {
		typ, paymentStatus string
		kind               domain.PaymentEventKind
	}{
		{"checkout.session.completed", "paid", domain.EventSettlementSucceeded},
		{"checkout.session.completed", "unpaid", domain.EventIgnored},
		{"checkout.session.async_payment_succeeded", "paid", domain.EventSettlementSucceeded},
		{"checkout.session.async_payment_failed", "unpaid", domain.EventSettlementFailed},
		{"checkout.session.expired", "unpaid", domain.EventSettlementFailed},
		{"invoice.paid", "paid", domain.EventIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.typ+"/"+tc.paymentStatus, func(t *testing.T) {
			payload := sessionEvent("evt_1", tc.typ, tc.paymentStatus)
			evt, err := p.ParseEvent(payload, sign(payload, testSecret))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if evt.Kind != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, evt.Kind)
			}
			if evt.ID != "evt_1" || evt.Type != tc.typ {
				t.Errorf("unexpected event identity: %+v", evt)
			}
			if tc.kind != domain.EventIgnored && (evt.ExternalReferenceID != "cs_test_1" || evt.TransactionID != "pi_test_1") {
				t.Errorf("expected session references, got %+v", evt)
			}
		})
	}
}

func TestEventParser_SignatureFailures(t *testing.T) {
	p := NewEventParser(testSecret)
	payload := sessionEvent("evt_1", "checkout.session.completed", "paid")

	headers := map[string]string{
		"missing":      "",
		"garbage":      "not-a-header",
		"wrong secret": sign(payload, "whsec_other"),
	}
	for name, h := range headers {
		t.Run(name, func(t *testing.T) {
			if _, err := p.ParseEvent(payload, h); !errors.Is(err, domain.ErrSignature) {
				t.Fatalf("expected ErrSignature, got %v", err)
			}
		})
	}

	t.Run("tampered body", func(t *testing.T) {
		h := sign(payload, testSecret)
		tampered := sessionEvent("evt_1", "checkout.session.completed", "unpaid")
		if _, err := p.ParseEvent(tampered, h); !errors.Is(err, domain.ErrSignature) {
			t.Fatalf("expected ErrSignature, got %v", err)
		}
	})
}

func TestEventParser_UndecodableBody(t *testing.T) {
	p := NewEventParser(testSecret)
	payload := []byte(`{"id": "evt_1", "type": `)
	if _, err := p.ParseEvent(payload, sign(payload, testSecret)); !errors.Is(err, domain.ErrDeserialization) {
		t.Fatalf("expected ErrDeserialization, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Checkout sessions
// ---------------------------------------------------------------------------

func TestGateway_CreateCheckout(t *testing.T) {
	var (
		gotForm        url.Values
		gotIdempotency string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			http.Error(w, "unexpected request", http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		gotIdempotency = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_test_42","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_42"}`)
	}))
	defer srv.Close()

	backend := gostripe.GetBackendWithConfig(gostripe.APIBackend, &gostripe.BackendConfig{
		URL:               gostripe.String(srv.URL),
		MaxNetworkRetries: gostripe.Int64(0),
		LeveledLogger:     &gostripe.LeveledLogger{Level: gostripe.LevelNull},
	})
	g := NewGateway(GatewayConfig{SecretKey: "sk_test_x", AppBaseURL: "https://market.test/", Backend: backend})

	session, err := g.CreateCheckout(context.Background(), ports.CheckoutRequest{
		PaymentID:   "pay-1",
		OrderID:     "order-1",
		BidID:       "bid-1",
		Description: "Order #order-1",
		Amount:      decimal.RequireFromString("120.50"),
		Currency:    "CAD",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if session.ExternalReferenceID != "cs_test_42" || session.URL == "" {
		t.Errorf("unexpected session: %+v", session)
	}
	if gotIdempotency != "pay-1" {
		t.Errorf("expected payment id as idempotency key, got %q", gotIdempotency)
	}

	want := map[string]string{
		"mode":                                          "payment",
		"line_items[0][price_data][currency]":           "cad",
		"line_items[0][price_data][unit_amount]":        "12050",
		"line_items[0][price_data][product_data][name]": "Order #order-1",
		"line_items[0][quantity]":                       "1",
		"client_reference_id":                           "pay-1",
		"metadata[bid_id]":                              "bid-1",
		"cancel_url":                                    "https://market.test/payment/cancel",
	}
	for k, v := range want {
		if got := gotForm.Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
}

func TestGateway_ProcessorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"bad currency"}}`)
	}))
	defer srv.Close()

	backend := gostripe.GetBackendWithConfig(gostripe.APIBackend, &gostripe.BackendConfig{
		URL:               gostripe.String(srv.URL),
		MaxNetworkRetries: gostripe.Int64(0),
		LeveledLogger:     &gostripe.LeveledLogger{Level: gostripe.LevelNull},
	})
	g := NewGateway(GatewayConfig{SecretKey: "sk_test_x", Backend: backend})

	if _, err := g.CreateCheckout(context.Background(), ports.CheckoutRequest{PaymentID: "p", Amount: decimal.NewFromInt(1), Currency: "CAD"}); err == nil {
		t.Fatal("expected an error from the processor")
	}
}
