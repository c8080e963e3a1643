package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

type orderService struct {
	orders   ports.OrderRepository
	payments ports.PaymentRepository
	listings ports.ListingRepository
	carts    ports.CartRepository
	now      func() time.Time
	log      zerolog.Logger
}

// NewOrderService returns an OrderService implementation.
func NewOrderService(
	orders ports.OrderRepository,
	payments ports.PaymentRepository,
	listings ports.ListingRepository,
	carts ports.CartRepository,
	log zerolog.Logger,
) ports.OrderService {
	return &orderService{
		orders:   orders,
		payments: payments,
		listings: listings,
		carts:    carts,
		now:      time.Now,
		log:      log,
	}
}

// CreateFromCart converts the user's cart into a PENDING order. Unit prices
// are copied from the listings at this moment and never recomputed.
func (s *orderService) CreateFromCart(ctx context.Context, userID string) (*domain.Order, error) {
	cart, err := s.carts.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			return nil, domain.ErrEmptyCart
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		if ci.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for listing %s must be positive", domain.ErrValidation, ci.ListingID)
		}
		listing, err := s.listings.FindByID(ctx, ci.ListingID)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		if listing.Status != domain.ListingActive || listing.Quantity < ci.Quantity {
			return nil, fmt.Errorf("create order: %w (listing %s)", domain.ErrListingUnavailable, listing.ID)
		}
		if listing.SellerID == userID {
			return nil, fmt.Errorf("%w: cannot order your own listing", domain.ErrValidation)
		}
		items = append(items, domain.OrderItem{
			ListingID: listing.ID,
			Title:     listing.Title,
			Quantity:  ci.Quantity,
			UnitPrice: listing.Price,
		})
	}

	now := s.now().UTC()
	order := &domain.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Status:     domain.OrderPending,
		TotalPrice: domain.TotalOf(items),
		Items:      items,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to clear cart after order")
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("user_id", userID).
		Str("total", order.TotalPrice.StringFixed(2)).
		Msg("order created from cart")

	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID, requestorID string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != requestorID {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

func (s *orderService) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

func (s *orderService) ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}

// PaymentStatusByOrder reports the order status and its latest payment, if any.
func (s *orderService) PaymentStatusByOrder(ctx context.Context, orderID, requestorID string) (*ports.PaymentStatusView, error) {
	order, err := s.Get(ctx, orderID, requestorID)
	if err != nil {
		return nil, err
	}

	view := &ports.PaymentStatusView{
		OrderID:     order.ID,
		OrderStatus: order.Status,
		Amount:      order.TotalPrice,
		UpdatedAt:   order.UpdatedAt,
	}

	payment, err := s.payments.FindLatestByOrder(ctx, order.ID)
	switch {
	case err == nil:
		fillPayment(view, payment)
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, err
	}
	return view, nil
}

// PaymentStatusByReference looks a payment up by its processor reference.
func (s *orderService) PaymentStatusByReference(ctx context.Context, externalRef, requestorID string) (*ports.PaymentStatusView, error) {
	payment, err := s.payments.FindByExternalReference(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if payment.UserID != requestorID {
		return nil, domain.ErrForbidden
	}

	view := &ports.PaymentStatusView{OrderID: payment.OrderID}
	fillPayment(view, payment)

	if order, err := s.orders.FindByID(ctx, payment.OrderID); err == nil {
		view.OrderStatus = order.Status
	} else {
		s.log.Warn().Err(err).Str("order_id", payment.OrderID).Msg("order lookup failed for payment status")
	}
	return view, nil
}

func fillPayment(v *ports.PaymentStatusView, p *domain.Payment) {
	v.PaymentID = p.ID
	v.PaymentStatus = p.Status
	v.Amount = p.Amount
	v.Currency = p.Currency
	v.FailureReason = p.FailureReason
	v.UpdatedAt = p.UpdatedAt
}
