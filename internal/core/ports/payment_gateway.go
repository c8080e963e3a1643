package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// CheckoutRequest is what the processor needs to open a hosted checkout.
// PaymentID doubles as the idempotency key so that retries and concurrent
// callers get back the same processor session.
type CheckoutRequest struct {
	PaymentID   string
	OrderID     string
	BidID       string
	Description string
	Amount      decimal.Decimal
	Currency    string
}

// CheckoutSession is the processor-issued handle for a checkout.
type CheckoutSession struct {
	ExternalReferenceID string
	URL                 string
}

// PaymentGateway creates checkout sessions with the external processor.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// PaymentEventParser verifies a webhook signature over the raw payload and
// decodes the event. Returns domain.ErrSignature or domain.ErrDeserialization.
type PaymentEventParser interface {
	ParseEvent(payload []byte, signatureHeader string) (*domain.PaymentEvent, error)
}

// PaymentEventLog is the audit and reconciliation trail for webhook events.
type PaymentEventLog interface {
	Record(ctx context.Context, rec *domain.PaymentEventRecord) error
	ListByOutcome(ctx context.Context, outcomes ...domain.EventOutcome) ([]*domain.PaymentEventRecord, error)
}

// EventDeduplicator is a best-effort fast path for already applied events.
type EventDeduplicator interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
