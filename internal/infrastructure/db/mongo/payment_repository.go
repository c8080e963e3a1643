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

type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection(collectionPayments)}
}

type paymentDoc struct {
	ID                  string               `bson:"_id"`
	OrderID             string               `bson:"order_id"`
	BidID               string               `bson:"bid_id,omitempty"`
	UserID              string               `bson:"user_id"`
	ExternalReferenceID string               `bson:"external_reference_id,omitempty"`
	CheckoutURL         string               `bson:"checkout_url,omitempty"`
	Amount              primitive.Decimal128 `bson:"amount"`
	Currency            string               `bson:"currency"`
	Method              string               `bson:"method"`
	Status              string               `bson:"status"`
	TransactionID       string               `bson:"transaction_id,omitempty"`
	FailureReason       string               `bson:"failure_reason,omitempty"`
	CreatedAt           time.Time            `bson:"created_at"`
	UpdatedAt           time.Time            `bson:"updated_at"`
}

func toPaymentDoc(p *domain.Payment) paymentDoc {
	return paymentDoc{
		ID:                  p.ID,
		OrderID:             p.OrderID,
		BidID:               p.BidID,
		UserID:              p.UserID,
		ExternalReferenceID: p.ExternalReferenceID,
		CheckoutURL:         p.CheckoutURL,
		Amount:              toDecimal128(p.Amount),
		Currency:            p.Currency,
		Method:              p.Method,
		Status:              string(p.Status),
		TransactionID:       p.TransactionID,
		FailureReason:       p.FailureReason,
		CreatedAt:           p.CreatedAt.UTC(),
		UpdatedAt:           p.UpdatedAt.UTC(),
	}
}

func (d paymentDoc) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:                  d.ID,
		OrderID:             d.OrderID,
		BidID:               d.BidID,
		UserID:              d.UserID,
		ExternalReferenceID: d.ExternalReferenceID,
		CheckoutURL:         d.CheckoutURL,
		Amount:              fromDecimal128(d.Amount),
		Currency:            d.Currency,
		Method:              d.Method,
		Status:              domain.PaymentStatus(d.Status),
		TransactionID:       d.TransactionID,
		FailureReason:       d.FailureReason,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

// Create inserts a PENDING payment. The partial unique index on order_id
// turns a second concurrent insert into domain.ErrDuplicatePayment.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toPaymentDoc(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

func (r *PaymentRepository) FindByExternalReference(ctx context.Context, ref string) (*domain.Payment, error) {
	if ref == "" {
		return nil, domain.ErrPaymentNotFound
	}
	return r.findOne(ctx, bson.M{"external_reference_id": ref}, nil)
}

func (r *PaymentRepository) FindActiveByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"order_id": orderID, "status": string(domain.PaymentPending)}, nil)
}

func (r *PaymentRepository) FindLatestByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, bson.M{"order_id": orderID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}))
}

func (r *PaymentRepository) ExistsForBid(ctx context.Context, bidID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, bson.M{"bid_id": bidID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count payments: %w", err)
	}
	return n > 0, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer cur.Close(ctx)

	var docs []paymentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	out := make([]*domain.Payment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *PaymentRepository) AttachCheckout(ctx context.Context, paymentID, externalRef, checkoutURL string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"_id":                   paymentID,
		"status":                string(domain.PaymentPending),
		"external_reference_id": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{
		"external_reference_id": externalRef,
		"checkout_url":          checkoutURL,
		"updated_at":            at.UTC(),
	}}
	res, err := r.col.UpdateOne(ctx, filter, update)
	return conditionalResult(res, err, domain.ErrStatusConflict)
}

func (r *PaymentRepository) Settle(ctx context.Context, paymentID string, s domain.Settlement) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{"status": string(s.Status), "updated_at": s.At.UTC()}
	if s.TransactionID != "" {
		set["transaction_id"] = s.TransactionID
	}
	if s.FailureReason != "" {
		set["failure_reason"] = s.FailureReason
	}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": paymentID, "status": string(domain.PaymentPending)},
		bson.M{"$set": set},
	)
	return conditionalResult(res, err, nil)
}

// EnsureIndexes creates necessary indexes on the payments collection.
func (r *PaymentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().
				SetName("one_pending_payment_per_order").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.PaymentPending)}),
		},
		{
			Keys: bson.D{{Key: "external_reference_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"external_reference_id": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "bid_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func (r *PaymentRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if opts == nil {
		opts = options.FindOne()
	}

	var d paymentDoc
	if err := r.col.FindOne(ctx, filter, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return d.toDomain(), nil
}
