package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// CreateBidInput carries all data needed to place a bid.
type CreateBidInput struct {
	ListingID       string
	BidderID        string
	ProposedPrice   decimal.Decimal
	AdditionalTerms string
}

// BidService defines use-case operations for the bid lifecycle.
type BidService interface {
	Create(ctx context.Context, in CreateBidInput) (*domain.Bid, error)
	SetStatus(ctx context.Context, bidID, actorID string, status domain.BidStatus) (*domain.Bid, error)
	Finalize(ctx context.Context, listingID, sellerID string) (*domain.Bid, error)
	Get(ctx context.Context, bidID, actorID string) (*domain.Bid, error)
	ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error)
	ListByListing(ctx context.Context, listingID, actorID string) ([]*domain.Bid, error)
	ActiveCount(ctx context.Context, listingID string) (int64, error)
	// ExpireStale expires bids that outlived their window and returns how many.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}
