package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// EventRepository implements ports.PaymentEventLog using MongoDB.
type EventRepository struct {
	col *mongo.Collection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *mongo.Database) *EventRepository {
	return &EventRepository{col: db.Collection(collectionPaymentEvents)}
}

var _ ports.PaymentEventLog = (*EventRepository)(nil)

type eventDoc struct {
	EventID             string    `bson:"event_id"`
	Type                string    `bson:"type"`
	ExternalReferenceID string    `bson:"external_reference_id,omitempty"`
	PaymentID           string    `bson:"payment_id,omitempty"`
	Outcome             string    `bson:"outcome"`
	Detail              string    `bson:"detail,omitempty"`
	ReceivedAt          time.Time `bson:"received_at"`
}

// Record appends one delivery to the payment_events audit collection.
// Redeliveries of the same event produce separate entries.
func (r *EventRepository) Record(ctx context.Context, rec *domain.PaymentEventRecord) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := eventDoc{
		EventID:             rec.EventID,
		Type:                rec.Type,
		ExternalReferenceID: rec.ExternalReferenceID,
		PaymentID:           rec.PaymentID,
		Outcome:             string(rec.Outcome),
		Detail:              rec.Detail,
		ReceivedAt:          rec.ReceivedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// ListByOutcome returns recorded deliveries with any of the given outcomes,
// oldest first.
func (r *EventRepository) ListByOutcome(ctx context.Context, outcomes ...domain.EventOutcome) ([]*domain.PaymentEventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	in := make(bson.A, 0, len(outcomes))
	for _, o := range outcomes {
		in = append(in, string(o))
	}

	cur, err := r.col.Find(ctx,
		bson.M{"outcome": bson.M{"$in": in}},
		options.Find().SetSort(bson.D{{Key: "received_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payment events: %w", err)
	}

	out := make([]*domain.PaymentEventRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, &domain.PaymentEventRecord{
			EventID:             d.EventID,
			Type:                d.Type,
			ExternalReferenceID: d.ExternalReferenceID,
			PaymentID:           d.PaymentID,
			Outcome:             domain.EventOutcome(d.Outcome),
			Detail:              d.Detail,
			ReceivedAt:          d.ReceivedAt.UTC(),
		})
	}
	return out, nil
}

func (r *EventRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
		{Keys: bson.D{{Key: "outcome", Value: 1}, {Key: "received_at", Value: 1}}},
	})
	return err
}
