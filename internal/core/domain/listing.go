package domain

import "github.com/shopspring/decimal"

// ListingStatus mirrors the listing catalogue's availability flag.
type ListingStatus string

const (
	ListingActive   ListingStatus = "ACTIVE"
	ListingInactive ListingStatus = "INACTIVE"
	ListingSold     ListingStatus = "SOLD"
)

// Listing is the read-only view of a catalogue item the transaction core needs.
type Listing struct {
	ID             string          `json:"id"`
	SellerID       string          `json:"seller_id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	BiddingAllowed bool            `json:"bidding_allowed"`
	StartingBid    decimal.Decimal `json:"starting_bid"`
	Status         ListingStatus   `json:"status"`
}

// AcceptsBids reports whether new bids may be placed on the listing.
func (l *Listing) AcceptsBids() bool {
	return l.BiddingAllowed && l.Status == ListingActive
}

// CartItem references a listing the user intends to buy.
type CartItem struct {
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

// Cart is a user's pending selection.
type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}
