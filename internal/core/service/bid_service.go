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

const (
	DefaultBidPendingTTL    = 7 * 24 * time.Hour
	DefaultBidPaymentWindow = 72 * time.Hour
)

// BidExpiryPolicy bounds how long a bid may sit in a non-terminal status.
type BidExpiryPolicy struct {
	PendingTTL    time.Duration
	PaymentWindow time.Duration
}

type bidService struct {
	bids     ports.BidRepository
	listings ports.ListingRepository
	payments ports.PaymentRepository
	notifier ports.Notifier
	expiry   BidExpiryPolicy
	now      func() time.Time
	log      zerolog.Logger
}

// NewBidService returns a BidService implementation.
func NewBidService(
	bids ports.BidRepository,
	listings ports.ListingRepository,
	payments ports.PaymentRepository,
	notifier ports.Notifier,
	expiry BidExpiryPolicy,
	log zerolog.Logger,
) ports.BidService {
	if expiry.PendingTTL <= 0 {
		expiry.PendingTTL = DefaultBidPendingTTL
	}
	if expiry.PaymentWindow <= 0 {
		expiry.PaymentWindow = DefaultBidPaymentWindow
	}
	return &bidService{
		bids:     bids,
		listings: listings,
		payments: payments,
		notifier: notifier,
		expiry:   expiry,
		now:      time.Now,
		log:      log,
	}
}

// Create places a PENDING bid after checking the listing's bidding rules.
func (s *bidService) Create(ctx context.Context, in ports.CreateBidInput) (*domain.Bid, error) {
	listing, err := s.listings.FindByID(ctx, in.ListingID)
	if err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}

	if listing.SellerID == in.BidderID {
		return nil, domain.ErrInvalidBidder
	}
	if !listing.AcceptsBids() {
		return nil, domain.ErrBiddingDisabled
	}
	if !in.ProposedPrice.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if listing.StartingBid.IsPositive() && in.ProposedPrice.LessThan(listing.StartingBid) {
		return nil, domain.ErrBelowStartingBid
	}

	now := s.now().UTC()
	bid := &domain.Bid{
		ID:              uuid.NewString(),
		ListingID:       listing.ID,
		BidderID:        in.BidderID,
		SellerID:        listing.SellerID,
		ProposedPrice:   in.ProposedPrice,
		AdditionalTerms: in.AdditionalTerms,
		Status:          domain.BidPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.bids.Create(ctx, bid); err != nil {
		return nil, fmt.Errorf("create bid: %w", err)
	}

	s.notify(bid.SellerID, domain.NotifyBidReceived,
		fmt.Sprintf("New bid of %s on %q", bid.ProposedPrice.StringFixed(2), listing.Title))

	s.log.Info().
		Str("bid_id", bid.ID).
		Str("listing_id", bid.ListingID).
		Str("bidder_id", bid.BidderID).
		Msg("bid created")

	return bid, nil
}

// SetStatus applies a seller decision. Only ACCEPTED and REJECTED can be
// requested; the write is a compare-and-set on the status that was read.
func (s *bidService) SetStatus(ctx context.Context, bidID, actorID string, status domain.BidStatus) (*domain.Bid, error) {
	if !status.SellerSettable() {
		return nil, fmt.Errorf("set bid status: %w (to %s)", domain.ErrInvalidTransition, status)
	}

	bid, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		return nil, fmt.Errorf("set bid status: %w", err)
	}
	if bid.SellerID != actorID {
		return nil, domain.ErrForbidden
	}

	updated, err := s.transition(ctx, bid, status)
	if err != nil {
		return nil, err
	}

	if status == domain.BidAccepted {
		s.rejectCompeting(ctx, updated)
		s.notify(updated.BidderID, domain.NotifyBidAccepted, "Your bid was accepted. Complete payment to claim the item.")
	} else {
		s.notify(updated.BidderID, domain.NotifyBidRejected, "Your bid was declined by the seller.")
	}

	return updated, nil
}

// Finalize accepts the highest PENDING bid on the seller's listing.
func (s *bidService) Finalize(ctx context.Context, listingID, sellerID string) (*domain.Bid, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("finalize bidding: %w", err)
	}
	if listing.SellerID != sellerID {
		return nil, domain.ErrForbidden
	}

	all, err := s.bids.ListByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("finalize bidding: %w", err)
	}

	var best *domain.Bid
	for _, b := range all {
		if b.Status != domain.BidPending {
			continue
		}
		if best == nil || b.ProposedPrice.GreaterThan(best.ProposedPrice) ||
			(b.ProposedPrice.Equal(best.ProposedPrice) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	if best == nil {
		return nil, domain.ErrNoPendingBids
	}

	return s.SetStatus(ctx, best.ID, sellerID, domain.BidAccepted)
}

// Get returns a bid visible to its bidder or seller.
func (s *bidService) Get(ctx context.Context, bidID, actorID string) (*domain.Bid, error) {
	bid, err := s.bids.FindByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if !bid.InvolvesUser(actorID) {
		return nil, domain.ErrForbidden
	}
	return bid, nil
}

func (s *bidService) ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	return s.bids.ListByBidder(ctx, bidderID)
}

// ListByListing returns every bid on a listing to its seller.
func (s *bidService) ListByListing(ctx context.Context, listingID, actorID string) ([]*domain.Bid, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != actorID {
		return nil, domain.ErrForbidden
	}
	return s.bids.ListByListing(ctx, listingID)
}

func (s *bidService) ActiveCount(ctx context.Context, listingID string) (int64, error) {
	return s.bids.CountByListing(ctx, listingID, domain.BidPending)
}

// ExpireStale moves PENDING bids idle past PendingTTL, and ACCEPTED bids that
// never started a payment within PaymentWindow, to EXPIRED.
func (s *bidService) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired := 0

	pendingCutoff := now.Add(-s.expiry.PendingTTL)
	pending, err := s.bids.ListStale(ctx, domain.BidPending, pendingCutoff)
	if err != nil {
		return 0, fmt.Errorf("expire bids: %w", err)
	}
	for _, b := range pending {
		if s.expire(ctx, b, pendingCutoff, now) {
			expired++
		}
	}

	// Checkout touches the bid before it creates a payment, so a bid claimed
	// after the lookup below no longer matches the idle cutoff.
	acceptedCutoff := now.Add(-s.expiry.PaymentWindow)
	accepted, err := s.bids.ListStale(ctx, domain.BidAccepted, acceptedCutoff)
	if err != nil {
		return expired, fmt.Errorf("expire bids: %w", err)
	}
	for _, b := range accepted {
		started, err := s.payments.ExistsForBid(ctx, b.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("bid_id", b.ID).Msg("payment lookup failed, keeping bid")
			continue
		}
		if started {
			continue
		}
		if s.expire(ctx, b, acceptedCutoff, now) {
			expired++
		}
	}

	return expired, nil
}

func (s *bidService) expire(ctx context.Context, b *domain.Bid, idleBefore, now time.Time) bool {
	err := s.bids.ExpireIdle(ctx, b.ID, b.Status, idleBefore, now.UTC())
	if err != nil {
		if !errors.Is(err, domain.ErrStatusConflict) {
			s.log.Warn().Err(err).Str("bid_id", b.ID).Msg("failed to expire bid")
		}
		return false
	}
	if b.Status == domain.BidAccepted && s.paymentStartedMeanwhile(ctx, b, now) {
		return false
	}
	s.notify(b.BidderID, domain.NotifyBidExpired, "Your bid expired.")
	s.log.Info().Str("bid_id", b.ID).Str("from", string(b.Status)).Msg("bid expired")
	return true
}

// paymentStartedMeanwhile looks for a payment again after an ACCEPTED bid was
// expired. Checkout re-reads the bid after inserting its payment, so either
// that re-read sees EXPIRED or this lookup sees the payment. In the latter
// case the bid goes back to ACCEPTED.
func (s *bidService) paymentStartedMeanwhile(ctx context.Context, b *domain.Bid, now time.Time) bool {
	started, err := s.payments.ExistsForBid(ctx, b.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("bid_id", b.ID).Msg("payment lookup after expiry failed")
		return false
	}
	if !started {
		return false
	}
	if err := s.bids.UpdateStatus(ctx, b.ID, domain.BidExpired, domain.BidAccepted, now.UTC()); err != nil {
		s.log.Error().Err(err).Str("bid_id", b.ID).Msg("failed to restore bid with a started payment")
		return false
	}
	s.log.Info().Str("bid_id", b.ID).Msg("payment started during expiry, bid kept")
	return true
}

// transition commits bid.Status -> to, or explains why it could not.
func (s *bidService) transition(ctx context.Context, bid *domain.Bid, to domain.BidStatus) (*domain.Bid, error) {
	if !bid.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("set bid status: %w (from %s to %s)", domain.ErrInvalidTransition, bid.Status, to)
	}

	now := s.now().UTC()
	err := s.bids.UpdateStatus(ctx, bid.ID, bid.Status, to, now)
	if errors.Is(err, domain.ErrStatusConflict) {
		current, findErr := s.bids.FindByID(ctx, bid.ID)
		if findErr != nil {
			return nil, fmt.Errorf("set bid status: %w", findErr)
		}
		return nil, fmt.Errorf("set bid status: %w (from %s to %s)", domain.ErrInvalidTransition, current.Status, to)
	}
	if err != nil {
		return nil, fmt.Errorf("set bid status: %w", err)
	}

	s.log.Info().
		Str("bid_id", bid.ID).
		Str("from", string(bid.Status)).
		Str("to", string(to)).
		Msg("bid status changed")

	updated := *bid
	updated.Status = to
	updated.UpdatedAt = now
	return &updated, nil
}

// rejectCompeting declines the other PENDING bids once one is accepted.
// Bids that moved concurrently are left alone.
func (s *bidService) rejectCompeting(ctx context.Context, accepted *domain.Bid) {
	others, err := s.bids.ListByListing(ctx, accepted.ListingID)
	if err != nil {
		s.log.Warn().Err(err).Str("listing_id", accepted.ListingID).Msg("could not load competing bids")
		return
	}
	now := s.now().UTC()
	for _, b := range others {
		if b.ID == accepted.ID || b.Status != domain.BidPending {
			continue
		}
		if err := s.bids.UpdateStatus(ctx, b.ID, domain.BidPending, domain.BidRejected, now); err != nil {
			if !errors.Is(err, domain.ErrStatusConflict) {
				s.log.Warn().Err(err).Str("bid_id", b.ID).Msg("failed to reject competing bid")
			}
			continue
		}
		s.notify(b.BidderID, domain.NotifyBidRejected, "Another offer was accepted for this listing.")
	}
}

func (s *bidService) notify(userID string, typ domain.NotificationType, msg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Message:   msg,
		CreatedAt: s.now().UTC(),
	})
}
