package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const DefaultCurrency = "CAD"

// bidOrderNamespace scopes the deterministic order ids derived from bid ids,
// so concurrent checkouts of one bid converge on a single order document.
var bidOrderNamespace = uuid.MustParse("7c0f3b36-4b8e-4b7a-9d7e-2f4f0b6a51c9")

// BidOrderID returns the id of the order created for a bid.
func BidOrderID(bidID string) string {
	return uuid.NewSHA1(bidOrderNamespace, []byte(bidID)).String()
}

type checkoutService struct {
	bids     ports.BidRepository
	orders   ports.OrderRepository
	payments ports.PaymentRepository
	listings ports.ListingRepository
	gateway  ports.PaymentGateway
	currency string
	now      func() time.Time
	log      zerolog.Logger
}

// NewCheckoutService returns a CheckoutService implementation.
func NewCheckoutService(
	bids ports.BidRepository,
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	listings ports.ListingRepository,
	gateway ports.PaymentGateway,
	currency string,
	log zerolog.Logger,
) ports.CheckoutService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &checkoutService{
		bids:     bids,
		orders:   orders,
		payments: payments,
		listings: listings,
		gateway:  gateway,
		currency: strings.ToUpper(currency),
		now:      time.Now,
		log:      log,
	}
}

// CheckoutBid starts (or resumes) payment for an accepted bid.
func (s *checkoutService) CheckoutBid(ctx context.Context, bidID, requestorID string) (*ports.CheckoutResult, error) {
	bid, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		return nil, fmt.Errorf("checkout bid: %w", err)
	}
	if bid.BidderID != requestorID {
		return nil, domain.ErrForbidden
	}
	if bid.Status != domain.BidAccepted {
		return nil, fmt.Errorf("checkout bid: %w (status %s)", domain.ErrBidNotAccepted, bid.Status)
	}
	if err := s.claimBid(ctx, bid.ID); err != nil {
		return nil, fmt.Errorf("checkout bid: %w", err)
	}

	order, err := s.orderForBid(ctx, bid)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("checkout bid: %w (order %s)", domain.ErrOrderNotPayable, order.Status)
	}

	return s.assemble(ctx, order)
}

// CheckoutOrder starts (or resumes) payment for a pending order.
func (s *checkoutService) CheckoutOrder(ctx context.Context, orderID, requestorID string) (*ports.CheckoutResult, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("checkout order: %w", err)
	}
	if order.UserID != requestorID {
		return nil, domain.ErrForbidden
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("checkout order: %w (status %s)", domain.ErrOrderNotPayable, order.Status)
	}

	if order.BidID != "" {
		if err := s.claimBid(ctx, order.BidID); err != nil {
			return nil, fmt.Errorf("checkout order: %w", err)
		}
	}

	return s.assemble(ctx, order)
}

// claimBid refreshes an ACCEPTED bid so the expiry sweep no longer sees it
// as idle. It fails with domain.ErrBidNotAccepted once the bid has left
// ACCEPTED.
func (s *checkoutService) claimBid(ctx context.Context, bidID string) error {
	err := s.bids.Touch(ctx, bidID, domain.BidAccepted, s.now().UTC())
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrStatusConflict) {
		return err
	}
	bid, findErr := s.bids.FindByID(ctx, bidID)
	if findErr != nil {
		return findErr
	}
	return fmt.Errorf("%w (status %s)", domain.ErrBidNotAccepted, bid.Status)
}

// stillAccepted re-reads the bid behind a freshly created payment. A bid that
// expired in the meantime fails the payment instead of handing out a session.
func (s *checkoutService) stillAccepted(ctx context.Context, order *domain.Order, payment *domain.Payment) error {
	bid, err := s.bids.FindByID(ctx, order.BidID)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if bid.Status == domain.BidAccepted {
		return nil
	}

	err = s.payments.Settle(ctx, payment.ID, domain.Settlement{
		Status:        domain.PaymentFailed,
		FailureReason: "bid no longer accepted",
		At:            s.now().UTC(),
	})
	if err != nil && !errors.Is(err, domain.ErrStatusConflict) {
		s.log.Warn().Err(err).Str("payment_id", payment.ID).Msg("failed to close payment for expired bid")
	}
	s.log.Info().Str("payment_id", payment.ID).Str("bid_id", bid.ID).Str("status", string(bid.Status)).Msg("checkout abandoned, bid left ACCEPTED")
	return fmt.Errorf("checkout: %w (status %s)", domain.ErrBidNotAccepted, bid.Status)
}

// orderForBid loads the bid's order or creates it with a price snapshot.
func (s *checkoutService) orderForBid(ctx context.Context, bid *domain.Bid) (*domain.Order, error) {
	orderID := bid.OrderID
	if orderID == "" {
		orderID = BidOrderID(bid.ID)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err == nil {
		return order, s.linkOrder(ctx, bid, order.ID)
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, fmt.Errorf("checkout bid: %w", err)
	}

	title := "Bid " + bid.ID
	if listing, lerr := s.listings.FindByID(ctx, bid.ListingID); lerr == nil {
		title = listing.Title
	} else {
		s.log.Warn().Err(lerr).Str("listing_id", bid.ListingID).Msg("listing lookup failed, using generic title")
	}

	now := s.now().UTC()
	items := []domain.OrderItem{{
		ListingID: bid.ListingID,
		Title:     title,
		Quantity:  1,
		UnitPrice: bid.ProposedPrice,
	}}
	order = &domain.Order{
		ID:         orderID,
		UserID:     bid.BidderID,
		BidID:      bid.ID,
		Status:     domain.OrderPending,
		TotalPrice: domain.TotalOf(items),
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if !errors.Is(err, domain.ErrDuplicateOrder) {
			return nil, fmt.Errorf("checkout bid: create order: %w", err)
		}
		// a concurrent checkout created it first
		if order, err = s.orders.FindByID(ctx, orderID); err != nil {
			return nil, fmt.Errorf("checkout bid: %w", err)
		}
	} else {
		s.log.Info().Str("order_id", order.ID).Str("bid_id", bid.ID).Msg("order created for bid")
	}

	return order, s.linkOrder(ctx, bid, order.ID)
}

func (s *checkoutService) linkOrder(ctx context.Context, bid *domain.Bid, orderID string) error {
	if bid.OrderID == orderID {
		return nil
	}
	if err := s.bids.AttachOrder(ctx, bid.ID, orderID); err != nil {
		return fmt.Errorf("checkout bid: link order: %w", err)
	}
	return nil
}

// assemble returns the order's live checkout, creating the payment and the
// processor session when needed. No lock is held across the processor call;
// convergence comes from the single-pending-payment constraint and the
// payment id used as idempotency key.
func (s *checkoutService) assemble(ctx context.Context, order *domain.Order) (*ports.CheckoutResult, error) {
	payment, err := s.payments.FindActiveByOrder(ctx, order.ID)
	switch {
	case err == nil && payment.HasCheckout():
		return resultFor(payment, true), nil
	case err == nil:
		// created by an earlier attempt whose processor call did not complete
	case errors.Is(err, domain.ErrPaymentNotFound):
		payment, err = s.newPayment(ctx, order)
		if err != nil {
			return nil, err
		}
		if payment.HasCheckout() {
			return resultFor(payment, true), nil
		}
		if order.BidID != "" {
			if err := s.stillAccepted(ctx, order, payment); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("checkout: %w", err)
	}

	session, err := s.gateway.CreateCheckout(ctx, ports.CheckoutRequest{
		PaymentID:   payment.ID,
		OrderID:     order.ID,
		BidID:       order.BidID,
		Description: "Order #" + order.ID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
	})
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", payment.ID).Str("order_id", order.ID).Msg("checkout session creation failed")
		return nil, fmt.Errorf("checkout: %w", domain.ErrUpstream)
	}

	err = s.payments.AttachCheckout(ctx, payment.ID, session.ExternalReferenceID, session.URL, s.now().UTC())
	if errors.Is(err, domain.ErrStatusConflict) {
		// another request attached first, or the payment settled meanwhile
		current, findErr := s.payments.FindByID(ctx, payment.ID)
		if findErr != nil {
			return nil, fmt.Errorf("checkout: %w", findErr)
		}
		if current.Status != domain.PaymentPending {
			return nil, fmt.Errorf("checkout: %w (payment %s)", domain.ErrOrderNotPayable, current.Status)
		}
		return resultFor(current, true), nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkout: attach session: %w", err)
	}

	payment.ExternalReferenceID = session.ExternalReferenceID
	payment.CheckoutURL = session.URL

	s.log.Info().
		Str("payment_id", payment.ID).
		Str("order_id", order.ID).
		Str("external_ref", session.ExternalReferenceID).
		Msg("checkout session created")

	return resultFor(payment, false), nil
}

// newPayment inserts a PENDING payment, or returns the one a concurrent
// request inserted first.
func (s *checkoutService) newPayment(ctx context.Context, order *domain.Order) (*domain.Payment, error) {
	now := s.now().UTC()
	p := &domain.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		BidID:     order.BidID,
		UserID:    order.UserID,
		Amount:    order.TotalPrice,
		Currency:  s.currency,
		Method:    domain.PaymentMethodCard,
		Status:    domain.PaymentPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.payments.Create(ctx, p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrDuplicatePayment) {
		return nil, fmt.Errorf("checkout: create payment: %w", err)
	}

	existing, err := s.payments.FindActiveByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return existing, nil
}

func resultFor(p *domain.Payment, reused bool) *ports.CheckoutResult {
	return &ports.CheckoutResult{
		PaymentID:           p.ID,
		OrderID:             p.OrderID,
		ExternalReferenceID: p.ExternalReferenceID,
		CheckoutURL:         p.CheckoutURL,
		Reused:              reused,
	}
}
