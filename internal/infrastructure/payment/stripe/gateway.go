// Package stripe adapts Stripe Checkout to the payment ports: hosted checkout
// sessions out, signed webhook events in.
package stripe

import (
	"context"
	"fmt"
	"strings"

	gostripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// GatewayConfig holds what the checkout adapter needs.
type GatewayConfig struct {
	SecretKey  string
	AppBaseURL string
	// Backend overrides the API backend; nil uses Stripe's.
	Backend gostripe.Backend
}

// Gateway implements ports.PaymentGateway with Stripe Checkout.
type Gateway struct {
	api     *client.API
	baseURL string
}

func NewGateway(cfg GatewayConfig) *Gateway {
	var backends *gostripe.Backends
	if cfg.Backend != nil {
		backends = &gostripe.Backends{API: cfg.Backend, Connect: cfg.Backend, Uploads: cfg.Backend}
	}
	return &Gateway{
		api:     client.New(cfg.SecretKey, backends),
		baseURL: strings.TrimRight(cfg.AppBaseURL, "/"),
	}
}

// CreateCheckout opens a hosted checkout session for one payment. The payment
// id is sent as the idempotency key, so a retried or concurrent request for
// the same payment returns the session Stripe already created.
func (g *Gateway) CreateCheckout(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	params := &gostripe.CheckoutSessionParams{
		Mode: gostripe.String(string(gostripe.CheckoutSessionModePayment)),
		LineItems: []*gostripe.CheckoutSessionLineItemParams{{
			PriceData: &gostripe.CheckoutSessionLineItemPriceDataParams{
				Currency: gostripe.String(strings.ToLower(req.Currency)),
				ProductData: &gostripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: gostripe.String(req.Description),
				},
				UnitAmount: gostripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
			},
			Quantity: gostripe.Int64(1),
		}},
		SuccessURL:        gostripe.String(g.baseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         gostripe.String(g.baseURL + "/payment/cancel"),
		ClientReferenceID: gostripe.String(req.PaymentID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.PaymentID)
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("order_id", req.OrderID)
	if req.BidID != "" {
		params.AddMetadata("bid_id", req.BidID)
	}

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &ports.CheckoutSession{ExternalReferenceID: s.ID, URL: s.URL}, nil
}
