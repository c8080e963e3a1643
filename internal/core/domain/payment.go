package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the settlement state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether the payment has been settled either way.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

const PaymentMethodCard = "CARD"

// Payment tracks one processor checkout for an order.
type Payment struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	BidID               string          `json:"bid_id,omitempty"`
	UserID              string          `json:"user_id"`
	ExternalReferenceID string          `json:"external_reference_id,omitempty"`
	CheckoutURL         string          `json:"checkout_url,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Method              string          `json:"method"`
	Status              PaymentStatus   `json:"status"`
	TransactionID       string          `json:"transaction_id,omitempty"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// HasCheckout reports whether a processor session is attached.
func (p *Payment) HasCheckout() bool {
	return p.ExternalReferenceID != "" && p.CheckoutURL != ""
}

// Settlement carries the processor details recorded with a terminal status.
type Settlement struct {
	Status        PaymentStatus
	TransactionID string
	FailureReason string
	At            time.Time
}
