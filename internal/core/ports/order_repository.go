package ports

import (
	"context"
	"time"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	// Create returns domain.ErrDuplicateOrder when the id is taken.
	Create(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	// UpdateStatus is conditional on from; domain.ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus, at time.Time) error
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	// Create returns domain.ErrDuplicatePayment when the order already has a
	// PENDING payment.
	Create(ctx context.Context, p *domain.Payment) error
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	FindByExternalReference(ctx context.Context, ref string) (*domain.Payment, error)
	// FindActiveByOrder returns the PENDING payment of an order.
	FindActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	// FindLatestByOrder returns the most recently created payment of an order.
	FindLatestByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	ExistsForBid(ctx context.Context, bidID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error)

	// AttachCheckout stores the processor session on a PENDING payment that
	// has none yet. domain.ErrStatusConflict when that no longer holds.
	AttachCheckout(ctx context.Context, paymentID, externalRef, checkoutURL string, at time.Time) error

	// Settle moves a PENDING payment to s.Status. domain.ErrStatusConflict when
	// the payment is no longer PENDING.
	Settle(ctx context.Context, paymentID string, s domain.Settlement) error
}
