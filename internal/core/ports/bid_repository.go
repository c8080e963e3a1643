package ports

import (
	"context"
	"time"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// BidRepository defines persistence operations for bids.
type BidRepository interface {
	// Create inserts a new bid. Returns domain.ErrDuplicateBid when the bidder
	// already holds a PENDING bid on the same listing.
	Create(ctx context.Context, b *domain.Bid) error
	FindByID(ctx context.Context, id string) (*domain.Bid, error)
	ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error)
	ListByListing(ctx context.Context, listingID string) ([]*domain.Bid, error)
	CountByListing(ctx context.Context, listingID string, status domain.BidStatus) (int64, error)

	// UpdateStatus commits to only while the bid is still in from.
	// Returns domain.ErrStatusConflict when it is not (or does not exist) and
	// domain.ErrListingHasAcceptedBid when another bid on the listing is
	// already ACCEPTED.
	UpdateStatus(ctx context.Context, id string, from, to domain.BidStatus, at time.Time) error

	// AttachOrder links an order to the bid. Succeeds when the bid has no order
	// yet or already carries orderID; otherwise domain.ErrStatusConflict.
	AttachOrder(ctx context.Context, bidID, orderID string) error

	// ListStale returns bids in status whose last update is older than before.
	ListStale(ctx context.Context, status domain.BidStatus, before time.Time) ([]*domain.Bid, error)

	// ExpireIdle moves the bid from -> EXPIRED only while it is still in from
	// and its last update is older than idleBefore; otherwise
	// domain.ErrStatusConflict.
	ExpireIdle(ctx context.Context, id string, from domain.BidStatus, idleBefore, at time.Time) error

	// Touch refreshes the bid's last update while it is still in status;
	// otherwise domain.ErrStatusConflict.
	Touch(ctx context.Context, id string, status domain.BidStatus, at time.Time) error
}
