package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

type BidRepository struct {
	col *mongo.Collection
}

func NewBidRepository(db *mongo.Database) *BidRepository {
	return &BidRepository{col: db.Collection(collectionBids)}
}

type bidDoc struct {
	ID              string               `bson:"_id"`
	ListingID       string               `bson:"listing_id"`
	BidderID        string               `bson:"bidder_id"`
	SellerID        string               `bson:"seller_id"`
	ProposedPrice   primitive.Decimal128 `bson:"proposed_price"`
	AdditionalTerms string               `bson:"additional_terms,omitempty"`
	Status          string               `bson:"status"`
	OrderID         string               `bson:"order_id,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

func toBidDoc(b *domain.Bid) bidDoc {
	return bidDoc{
		ID:              b.ID,
		ListingID:       b.ListingID,
		BidderID:        b.BidderID,
		SellerID:        b.SellerID,
		ProposedPrice:   toDecimal128(b.ProposedPrice),
		AdditionalTerms: b.AdditionalTerms,
		Status:          string(b.Status),
		OrderID:         b.OrderID,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
}

func (d bidDoc) toDomain() *domain.Bid {
	return &domain.Bid{
		ID:              d.ID,
		ListingID:       d.ListingID,
		BidderID:        d.BidderID,
		SellerID:        d.SellerID,
		ProposedPrice:   fromDecimal128(d.ProposedPrice),
		AdditionalTerms: d.AdditionalTerms,
		Status:          domain.BidStatus(d.Status),
		OrderID:         d.OrderID,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
}

// Create inserts a new bid document.
func (r *BidRepository) Create(ctx context.Context, b *domain.Bid) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toBidDoc(b)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateBid
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (r *BidRepository) FindByID(ctx context.Context, id string) (*domain.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d bidDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBidNotFound
		}
		return nil, fmt.Errorf("find bid: %w", err)
	}
	return d.toDomain(), nil
}

func (r *BidRepository) ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	return r.find(ctx, bson.M{"bidder_id": bidderID})
}

func (r *BidRepository) ListByListing(ctx context.Context, listingID string) ([]*domain.Bid, error) {
	return r.find(ctx, bson.M{"listing_id": listingID})
}

func (r *BidRepository) ListStale(ctx context.Context, status domain.BidStatus, before time.Time) ([]*domain.Bid, error) {
	return r.find(ctx, bson.M{
		"status":     string(status),
		"updated_at": bson.M{"$lt": before.UTC()},
	})
}

func (r *BidRepository) CountByListing(ctx context.Context, listingID string, status domain.BidStatus) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return r.col.CountDocuments(ctx, bson.M{"listing_id": listingID, "status": string(status)})
}

// UpdateStatus only matches while the bid is still in from. The partial
// unique index on accepted bids rejects a second ACCEPTED bid per listing.
func (r *BidRepository) UpdateStatus(ctx context.Context, id string, from, to domain.BidStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": at.UTC()}},
	)
	return conditionalResult(res, err, domain.ErrListingHasAcceptedBid)
}

// ExpireIdle matches on status and updated_at together, so a bid touched
// after it was listed as stale is left alone.
func (r *BidRepository) ExpireIdle(ctx context.Context, id string, from domain.BidStatus, idleBefore, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from), "updated_at": bson.M{"$lt": idleBefore.UTC()}},
		bson.M{"$set": bson.M{"status": string(domain.BidExpired), "updated_at": at.UTC()}},
	)
	return conditionalResult(res, err, nil)
}

func (r *BidRepository) Touch(ctx context.Context, id string, status domain.BidStatus, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(status)},
		bson.M{"$set": bson.M{"updated_at": at.UTC()}},
	)
	return conditionalResult(res, err, nil)
}

func (r *BidRepository) AttachOrder(ctx context.Context, bidID, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id": bidID,
		"$or": bson.A{
			bson.M{"order_id": bson.M{"$exists": false}},
			bson.M{"order_id": orderID},
		},
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"order_id": orderID}})
	return conditionalResult(res, err, nil)
}

// EnsureIndexes creates necessary indexes on the bids collection.
func (r *BidRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "bidder_id", Value: 1}},
			Options: options.Index().
				SetName("one_pending_bid_per_bidder").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.BidPending)}),
		},
		{
			Keys: bson.D{{Key: "listing_id", Value: 1}},
			Options: options.Index().
				SetName("one_accepted_bid_per_listing").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.BidAccepted)}),
		},
		{Keys: bson.D{{Key: "bidder_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *BidRepository) find(ctx context.Context, filter bson.M) ([]*domain.Bid, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer cur.Close(ctx)

	var docs []bidDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bids: %w", err)
	}

	out := make([]*domain.Bid, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
