package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// CheckoutResult is returned to the buyer after requesting a checkout.
type CheckoutResult struct {
	PaymentID           string
	OrderID             string
	ExternalReferenceID string
	CheckoutURL         string
	// Reused is true when an existing PENDING payment was returned.
	Reused bool
}

// CheckoutService turns an accepted bid or a pending order into a payment.
type CheckoutService interface {
	CheckoutBid(ctx context.Context, bidID, requestorID string) (*CheckoutResult, error)
	CheckoutOrder(ctx context.Context, orderID, requestorID string) (*CheckoutResult, error)
}

// PaymentStatusView is the buyer-facing view of a payment.
type PaymentStatusView struct {
	PaymentID     string
	OrderID       string
	OrderStatus   domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Amount        decimal.Decimal
	Currency      string
	FailureReason string
	UpdatedAt     time.Time
}

// OrderService covers order assembly and the buyer's order/payment history.
type OrderService interface {
	CreateFromCart(ctx context.Context, userID string) (*domain.Order, error)
	Get(ctx context.Context, orderID, requestorID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error)
	PaymentStatusByOrder(ctx context.Context, orderID, requestorID string) (*PaymentStatusView, error)
	PaymentStatusByReference(ctx context.Context, externalRef, requestorID string) (*PaymentStatusView, error)
}
