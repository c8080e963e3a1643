package handler

import (
	"time"

	"github.com/shopspring/decimal"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=40"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Verified    bool      `json:"verified"`
	Authorities []string  `json:"authorities"`
	CreatedAt   time.Time `json:"createdAt"`
}

type authResponse struct {
	Token string        `json:"token,omitempty"`
	User  *userResponse `json:"user,omitempty"`
}

// --- Bids ---

type createBidRequest struct {
	ProposedPrice   decimal.Decimal `json:"proposedPrice"   swaggertype:"string" example:"95.50"`
	AdditionalTerms string          `json:"additionalTerms" validate:"max=1000"`
}

type updateBidStatusRequest struct {
	Status string `json:"status" validate:"required" example:"ACCEPTED"`
}

type bidResponse struct {
	ID              string    `json:"id"`
	ListingID       string    `json:"listingId"`
	BidderID        string    `json:"bidderId"`
	SellerID        string    `json:"sellerId"`
	ProposedPrice   string    `json:"proposedPrice" example:"95.50"`
	AdditionalTerms string    `json:"additionalTerms,omitempty"`
	Status          string    `json:"status"`
	OrderID         string    `json:"orderId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type bidCountResponse struct {
	ListingID string `json:"listingId"`
	Count     int64  `json:"count"`
}

// --- Orders and payments ---

type orderItemResponse struct {
	ListingID string `json:"listingId"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice" example:"35.00"`
	Subtotal  string `json:"subtotal"  example:"70.00"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	UserID     string              `json:"userId"`
	BidID      string              `json:"bidId,omitempty"`
	Status     string              `json:"status"`
	TotalPrice string              `json:"totalPrice" example:"190.00"`
	Items      []orderItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

type checkoutResponse struct {
	PaymentID           string `json:"paymentId"`
	OrderID             string `json:"orderId"`
	ExternalReferenceID string `json:"externalReferenceId"`
	CheckoutURL         string `json:"checkoutUrl"`
	Reused              bool   `json:"reused"`
}

type paymentResponse struct {
	ID                  string    `json:"id"`
	OrderID             string    `json:"orderId"`
	BidID               string    `json:"bidId,omitempty"`
	ExternalReferenceID string    `json:"externalReferenceId,omitempty"`
	Amount              string    `json:"amount" example:"120.00"`
	Currency            string    `json:"currency"`
	Method              string    `json:"method"`
	Status              string    `json:"status"`
	TransactionID       string    `json:"transactionId,omitempty"`
	FailureReason       string    `json:"failureReason,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type paymentStatusResponse struct {
	PaymentID     string    `json:"paymentId,omitempty"`
	OrderID       string    `json:"orderId"`
	OrderStatus   string    `json:"orderStatus"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	FailureReason string    `json:"failureReason,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// --- Webhook and reconciliation ---

type webhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

type reconciliationEntry struct {
	EventID             string    `json:"eventId"`
	Type                string    `json:"type"`
	ExternalReferenceID string    `json:"externalReferenceId,omitempty"`
	PaymentID           string    `json:"paymentId,omitempty"`
	Outcome             string    `json:"outcome"`
	Detail              string    `json:"detail,omitempty"`
	ReceivedAt          time.Time `json:"receivedAt"`
}

type reconciliationResponse struct {
	Count  int                   `json:"count"`
	Events []reconciliationEntry `json:"events"`
}
