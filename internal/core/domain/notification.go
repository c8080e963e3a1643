package domain

import "time"

type NotificationType string

const (
	NotifyBidReceived      NotificationType = "BID_RECEIVED"
	NotifyBidAccepted      NotificationType = "BID_ACCEPTED"
	NotifyBidRejected      NotificationType = "BID_REJECTED"
	NotifyBidExpired       NotificationType = "BID_EXPIRED"
	NotifyPaymentSucceeded NotificationType = "PAYMENT_SUCCEEDED"
	NotifyPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotifyPasswordReset    NotificationType = "PASSWORD_RESET"
)

// Notification is a message for a single user. Delivery is best effort.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`

	// Secret travels to the delivery channel only; stores drop it.
	Secret string `json:"-"`
}
