package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	gostripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

const (
	eventSessionCompleted      = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	eventSessionExpired        = "checkout.session.expired"
)

// EventParser implements ports.PaymentEventParser for Stripe webhooks.
type EventParser struct {
	secret string
}

func NewEventParser(webhookSecret string) *EventParser {
	return &EventParser{secret: webhookSecret}
}

// ParseEvent checks the Stripe-Signature header over the raw payload before
// decoding anything, then maps checkout session events onto settlements.
func (p *EventParser) ParseEvent(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
	}

	evt := &domain.PaymentEvent{ID: event.ID, Type: string(event.Type), Kind: domain.EventIgnored}

	switch event.Type {
	case eventSessionCompleted, eventAsyncPaymentSucceeded, eventAsyncPaymentFailed, eventSessionExpired:
	default:
		return evt, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", domain.ErrDeserialization, event.ID)
	}
	var session gostripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", domain.ErrDeserialization, err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", domain.ErrDeserialization)
	}

	evt.ExternalReferenceID = session.ID
	if session.PaymentIntent != nil {
		evt.TransactionID = session.PaymentIntent.ID
	}

	switch event.Type {
	case eventSessionCompleted:
		// delayed methods complete unpaid and settle through the async events
		if session.PaymentStatus == gostripe.CheckoutSessionPaymentStatusPaid {
			evt.Kind = domain.EventSettlementSucceeded
		}
	case eventAsyncPaymentSucceeded:
		evt.Kind = domain.EventSettlementSucceeded
	case eventAsyncPaymentFailed:
		evt.Kind = domain.EventSettlementFailed
		evt.FailureReason = "asynchronous payment failed"
	case eventSessionExpired:
		evt.Kind = domain.EventSettlementFailed
		evt.FailureReason = "checkout session expired"
	}
	return evt, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
