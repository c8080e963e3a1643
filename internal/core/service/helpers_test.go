package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
	"github.com/campusmarket/marketplace-core/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// fakeGateway behaves like the processor's idempotency layer: the same
// payment id always yields the same session.
type fakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*ports.CheckoutSession
	calls    int
	err      error
	last     ports.CheckoutRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*ports.CheckoutSession)}
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	if s, ok := g.sessions[req.PaymentID]; ok {
		return s, nil
	}
	s := &ports.CheckoutSession{
		ExternalReferenceID: "cs_" + req.PaymentID,
		URL:                 "https://checkout.test/" + req.PaymentID,
	}
	g.sessions[req.PaymentID] = s
	return s, nil
}

func (g *fakeGateway) distinctSessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// stubParser returns a fixed event, or an error for any other signature.
type stubParser struct {
	validSig string
	events   map[string]*domain.PaymentEvent // keyed by payload
}

func newStubParser() *stubParser {
	return &stubParser{validSig: "good-sig", events: make(map[string]*domain.PaymentEvent)}
}

func (p *stubParser) add(payload string, evt *domain.PaymentEvent) []byte {
	p.events[payload] = evt
	return []byte(payload)
}

func (p *stubParser) ParseEvent(payload []byte, sig string) (*domain.PaymentEvent, error) {
	if sig != p.validSig {
		return nil, domain.ErrSignature
	}
	evt, ok := p.events[string(payload)]
	if !ok {
		return nil, domain.ErrDeserialization
	}
	clone := *evt
	return &clone, nil
}

// interleavedPayments runs a hook once around Create or ExistsForBid to
// replay a checkout racing the expiry sweep.
type interleavedPayments struct {
	ports.PaymentRepository
	beforeCreate func()
	afterExists  func()
}

func (p *interleavedPayments) Create(ctx context.Context, pay *domain.Payment) error {
	if hook := p.beforeCreate; hook != nil {
		p.beforeCreate = nil
		hook()
	}
	return p.PaymentRepository.Create(ctx, pay)
}

func (p *interleavedPayments) ExistsForBid(ctx context.Context, bidID string) (bool, error) {
	found, err := p.PaymentRepository.ExistsForBid(ctx, bidID)
	if hook := p.afterExists; hook != nil {
		p.afterExists = nil
		hook()
	}
	return found, err
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(notif domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notif)
}

func (n *recordingNotifier) ofType(typ domain.NotificationType) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, x := range n.sent {
		if x.Type == typ {
			out = append(out, x)
		}
	}
	return out
}

type failingDedup struct{}

func (failingDedup) IsDuplicate(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingDedup) Mark(context.Context, string) error { return errors.New("redis down") }

// ---------------------------------------------------------------------------
// Fixture: one store, every service wired the way main wires them.
// ---------------------------------------------------------------------------

const (
	sellerID = "seller-1"
	buyerID  = "buyer-1"
	otherID  = "buyer-2"
)

type fixture struct {
	store    *memory.Store
	gateway  *fakeGateway
	parser   *stubParser
	notifier *recordingNotifier
	bids     ports.BidService
	checkout ports.CheckoutService
	orders   ports.OrderService
	webhooks ports.WebhookService
}

func newFixture() *fixture {
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		gateway:  newFakeGateway(),
		parser:   newStubParser(),
		notifier: &recordingNotifier{},
	}
	log := zerolog.Nop()
	f.bids = NewBidService(store.Bids(), store.Listings(), store.Payments(), f.notifier, BidExpiryPolicy{}, log)
	f.checkout = NewCheckoutService(store.Bids(), store.Orders(), store.Payments(), store.Listings(), f.gateway, "cad", log)
	f.orders = NewOrderService(store.Orders(), store.Payments(), store.Listings(), store.Carts(), log)
	f.webhooks = NewWebhookService(f.parser, store.Payments(), store.Orders(), store.Bids(), store.PaymentEvents(), store.Deduplicator(), f.notifier, log)

	store.PutListing(&domain.Listing{
		ID:             "listing-1",
		SellerID:       sellerID,
		Title:          "Calculus textbook",
		Price:          decimal.NewFromInt(120),
		Quantity:       1,
		BiddingAllowed: true,
		Status:         domain.ListingActive,
	})
	return f
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func (f *fixture) placeBid(t testing.TB, bidder string, amount int64) *domain.Bid {
	t.Helper()
	b, err := f.bids.Create(context.Background(), ports.CreateBidInput{
		ListingID:     "listing-1",
		BidderID:      bidder,
		ProposedPrice: price(amount),
	})
	if err != nil {
		t.Fatalf("place bid: %v", err)
	}
	return b
}

func (f *fixture) acceptedBid(t testing.TB) *domain.Bid {
	t.Helper()
	b := f.placeBid(t, buyerID, 100)
	accepted, err := f.bids.SetStatus(context.Background(), b.ID, sellerID, domain.BidAccepted)
	if err != nil {
		t.Fatalf("accept bid: %v", err)
	}
	return accepted
}

// checkedOut returns an accepted bid with a live checkout session.
func (f *fixture) checkedOut(t testing.TB) (*domain.Bid, *ports.CheckoutResult) {
	t.Helper()
	bid := f.acceptedBid(t)
	res, err := f.checkout.CheckoutBid(context.Background(), bid.ID, buyerID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	return bid, res
}

func successEvent(id, ref string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:                  id,
		Type:                "checkout.session.completed",
		Kind:                domain.EventSettlementSucceeded,
		ExternalReferenceID: ref,
		TransactionID:       "pi_" + id,
	}
}

func failureEvent(id, ref string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:                  id,
		Type:                "checkout.session.async_payment_failed",
		Kind:                domain.EventSettlementFailed,
		ExternalReferenceID: ref,
		FailureReason:       "card declined",
	}
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
