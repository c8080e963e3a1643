package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus represents the lifecycle state of a bid.
type BidStatus string

const (
	BidPending  BidStatus = "PENDING"
	BidAccepted BidStatus = "ACCEPTED"
	BidRejected BidStatus = "REJECTED"
	BidPaid     BidStatus = "PAID"
	BidExpired  BidStatus = "EXPIRED"
)

// validBidTransitions defines the allowed state machine transitions.
// Statuses without an entry are terminal.
var validBidTransitions = map[BidStatus][]BidStatus{
	BidPending:  {BidAccepted, BidRejected, BidExpired},
	BidAccepted: {BidPaid, BidExpired},
}

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s BidStatus) CanTransitionTo(next BidStatus) bool {
	for _, allowed := range validBidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BidStatus) IsTerminal() bool {
	return len(validBidTransitions[s]) == 0
}

// SellerSettable reports whether a seller may request this status directly.
// PAID is reached only through a settled payment, EXPIRED only by the sweeper.
func (s BidStatus) SellerSettable() bool {
	return s == BidAccepted || s == BidRejected
}

// Valid reports whether s is a known bid status.
func (s BidStatus) Valid() bool {
	switch s {
	case BidPending, BidAccepted, BidRejected, BidPaid, BidExpired:
		return true
	}
	return false
}

// Bid is an offer by a prospective buyer on a bidding-enabled listing.
type Bid struct {
	ID              string          `json:"id"`
	ListingID       string          `json:"listing_id"`
	BidderID        string          `json:"bidder_id"`
	SellerID        string          `json:"seller_id"`
	ProposedPrice   decimal.Decimal `json:"proposed_price"`
	AdditionalTerms string          `json:"additional_terms,omitempty"`
	Status          BidStatus       `json:"status"`
	OrderID         string          `json:"order_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// InvolvesUser reports whether userID is the bidder or the seller.
func (b *Bid) InvolvesUser(userID string) bool {
	return userID != "" && (b.BidderID == userID || b.SellerID == userID)
}
