package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// ListingRepository reads listings owned by the catalogue service.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection(collectionListings)}
}

type listingDoc struct {
	ID             string               `bson:"_id"`
	SellerID       string               `bson:"seller_id"`
	Title          string               `bson:"title"`
	Price          primitive.Decimal128 `bson:"price"`
	Quantity       int                  `bson:"quantity"`
	BiddingAllowed bool                 `bson:"bidding_allowed"`
	StartingBid    primitive.Decimal128 `bson:"starting_bid"`
	Status         string               `bson:"status"`
}

func (r *ListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d listingDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrListingNotFound
		}
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return &domain.Listing{
		ID:             d.ID,
		SellerID:       d.SellerID,
		Title:          d.Title,
		Price:          fromDecimal128(d.Price),
		Quantity:       d.Quantity,
		BiddingAllowed: d.BiddingAllowed,
		StartingBid:    fromDecimal128(d.StartingBid),
		Status:         domain.ListingStatus(d.Status),
	}, nil
}

// CartRepository reads and clears carts keyed by user id.
type CartRepository struct {
	col *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{col: db.Collection(collectionCarts)}
}

type cartDoc struct {
	UserID string `bson:"_id"`
	Items  []struct {
		ListingID string `bson:"listing_id"`
		Quantity  int    `bson:"quantity"`
	} `bson:"items"`
}

func (r *CartRepository) FindByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var d cartDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": userID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("find cart: %w", err)
	}

	cart := &domain.Cart{UserID: d.UserID, Items: make([]domain.CartItem, 0, len(d.Items))}
	for _, it := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{ListingID: it.ListingID, Quantity: it.Quantity})
	}
	return cart, nil
}

// Clear empties the cart in place; the document itself stays.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"items": bson.A{}}})
	return err
}
