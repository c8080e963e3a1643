// Package memory is a process-local implementation of every repository port.
// It backs STORAGE=memory development runs and end-to-end tests, and applies
// the same uniqueness and compare-and-set rules as the Mongo indexes and
// filtered updates.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// Store holds all collections behind a single mutex.
type Store struct {
	mu sync.RWMutex

	users         map[string]*domain.User
	listings      map[string]*domain.Listing
	carts         map[string]*domain.Cart
	bids          map[string]*domain.Bid
	orders        map[string]*domain.Order
	payments      map[string]*domain.Payment
	events        []*domain.PaymentEventRecord
	notifications []*domain.Notification
	dedup         map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		listings: make(map[string]*domain.Listing),
		carts:    make(map[string]*domain.Cart),
		bids:     make(map[string]*domain.Bid),
		orders:   make(map[string]*domain.Order),
		payments: make(map[string]*domain.Payment),
		dedup:    make(map[string]struct{}),
	}
}

// ---------------------------------------------------------------------------
// Seeding (external collaborators have no write port)
// ---------------------------------------------------------------------------

func (s *Store) PutListing(l *domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	s.listings[l.ID] = &c
}

func (s *Store) PutCart(c *domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	clone.Items = slices.Clone(c.Items)
	s.carts[c.UserID] = &clone
}

// SetAccountStatus suspends or reactivates a stored user.
func (s *Store) SetAccountStatus(userID string, status domain.AccountStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Status = status
	}
}

// Notifications returns everything saved through Save, oldest first.
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type UserRepository struct{ s *Store }

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Authorities = slices.Clone(u.Authorities)
	return &c
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return domain.ErrUserExists
		}
	}
	if _, ok := r.s.users[u.ID]; ok {
		return domain.ErrUserExists
	}
	r.s.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ---------------------------------------------------------------------------
// Listings & carts
// ---------------------------------------------------------------------------

type ListingRepository struct{ s *Store }

func (s *Store) Listings() *ListingRepository { return &ListingRepository{s: s} }

func (r *ListingRepository) FindByID(_ context.Context, id string) (*domain.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.listings[id]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	c := *l
	return &c, nil
}

type CartRepository struct{ s *Store }

func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

func (r *CartRepository) FindByUser(_ context.Context, userID string) (*domain.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.carts[userID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	clone := *c
	clone.Items = slices.Clone(c.Items)
	return &clone, nil
}

func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, userID)
	return nil
}

// ---------------------------------------------------------------------------
// Bids
// ---------------------------------------------------------------------------

type BidRepository struct{ s *Store }

func (s *Store) Bids() *BidRepository { return &BidRepository{s: s} }

func cloneBid(b *domain.Bid) *domain.Bid {
	c := *b
	return &c
}

func (r *BidRepository) Create(_ context.Context, b *domain.Bid) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.bids {
		if b.Status == domain.BidPending && existing.Status == domain.BidPending &&
			existing.ListingID == b.ListingID && existing.BidderID == b.BidderID {
			return domain.ErrDuplicateBid
		}
	}
	r.s.bids[b.ID] = cloneBid(b)
	return nil
}

func (r *BidRepository) FindByID(_ context.Context, id string) (*domain.Bid, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bids[id]
	if !ok {
		return nil, domain.ErrBidNotFound
	}
	return cloneBid(b), nil
}

func (r *BidRepository) ListByBidder(_ context.Context, bidderID string) ([]*domain.Bid, error) {
	return r.filter(func(b *domain.Bid) bool { return b.BidderID == bidderID }), nil
}

func (r *BidRepository) ListByListing(_ context.Context, listingID string) ([]*domain.Bid, error) {
	return r.filter(func(b *domain.Bid) bool { return b.ListingID == listingID }), nil
}

func (r *BidRepository) CountByListing(_ context.Context, listingID string, status domain.BidStatus) (int64, error) {
	found := r.filter(func(b *domain.Bid) bool { return b.ListingID == listingID && b.Status == status })
	return int64(len(found)), nil
}

func (r *BidRepository) ListStale(_ context.Context, status domain.BidStatus, before time.Time) ([]*domain.Bid, error) {
	return r.filter(func(b *domain.Bid) bool { return b.Status == status && b.UpdatedAt.Before(before) }), nil
}

func (r *BidRepository) UpdateStatus(_ context.Context, id string, from, to domain.BidStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bids[id]
	if !ok || b.Status != from {
		return domain.ErrStatusConflict
	}
	if to == domain.BidAccepted {
		for _, other := range r.s.bids {
			if other.ID != id && other.ListingID == b.ListingID && other.Status == domain.BidAccepted {
				return domain.ErrListingHasAcceptedBid
			}
		}
	}
	b.Status = to
	b.UpdatedAt = at
	return nil
}

func (r *BidRepository) ExpireIdle(_ context.Context, id string, from domain.BidStatus, idleBefore, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bids[id]
	if !ok || b.Status != from || !b.UpdatedAt.Before(idleBefore) {
		return domain.ErrStatusConflict
	}
	b.Status = domain.BidExpired
	b.UpdatedAt = at
	return nil
}

func (r *BidRepository) Touch(_ context.Context, id string, status domain.BidStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bids[id]
	if !ok || b.Status != status {
		return domain.ErrStatusConflict
	}
	b.UpdatedAt = at
	return nil
}

func (r *BidRepository) AttachOrder(_ context.Context, bidID, orderID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bids[bidID]
	if !ok || (b.OrderID != "" && b.OrderID != orderID) {
		return domain.ErrStatusConflict
	}
	b.OrderID = orderID
	return nil
}

func (r *BidRepository) filter(keep func(*domain.Bid) bool) []*domain.Bid {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Bid, 0)
	for _, b := range r.s.bids {
		if keep(b) {
			out = append(out, cloneBid(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

type OrderRepository struct{ s *Store }

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}

func (r *OrderRepository) Create(_ context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[o.ID]; ok {
		return domain.ErrDuplicateOrder
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Order, 0)
	for _, o := range r.s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != from {
		return domain.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

type PaymentRepository struct{ s *Store }

func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

func (r *PaymentRepository) Create(_ context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.OrderID == p.OrderID && existing.Status == domain.PaymentPending && p.Status == domain.PaymentPending {
			return domain.ErrDuplicatePayment
		}
	}
	r.s.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *PaymentRepository) FindByID(_ context.Context, id string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepository) FindByExternalReference(_ context.Context, ref string) (*domain.Payment, error) {
	if ref == "" {
		return nil, domain.ErrPaymentNotFound
	}
	return r.first(func(p *domain.Payment) bool { return p.ExternalReferenceID == ref })
}

func (r *PaymentRepository) FindActiveByOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	return r.first(func(p *domain.Payment) bool { return p.OrderID == orderID && p.Status == domain.PaymentPending })
}

func (r *PaymentRepository) FindLatestByOrder(_ context.Context, orderID string) (*domain.Payment, error) {
	found := r.filter(func(p *domain.Payment) bool { return p.OrderID == orderID })
	if len(found) == 0 {
		return nil, domain.ErrPaymentNotFound
	}
	return found[0], nil
}

func (r *PaymentRepository) ExistsForBid(_ context.Context, bidID string) (bool, error) {
	return len(r.filter(func(p *domain.Payment) bool { return p.BidID == bidID })) > 0, nil
}

func (r *PaymentRepository) ListByUser(_ context.Context, userID string) ([]*domain.Payment, error) {
	return r.filter(func(p *domain.Payment) bool { return p.UserID == userID }), nil
}

func (r *PaymentRepository) AttachCheckout(_ context.Context, paymentID, externalRef, checkoutURL string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[paymentID]
	if !ok || p.Status != domain.PaymentPending || p.ExternalReferenceID != "" {
		return domain.ErrStatusConflict
	}
	p.ExternalReferenceID = externalRef
	p.CheckoutURL = checkoutURL
	p.UpdatedAt = at
	return nil
}

func (r *PaymentRepository) Settle(_ context.Context, paymentID string, st domain.Settlement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[paymentID]
	if !ok || p.Status != domain.PaymentPending {
		return domain.ErrStatusConflict
	}
	p.Status = st.Status
	p.TransactionID = st.TransactionID
	p.FailureReason = st.FailureReason
	p.UpdatedAt = st.At
	return nil
}

func (r *PaymentRepository) first(keep func(*domain.Payment) bool) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if keep(p) {
			return clonePayment(p), nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *PaymentRepository) filter(keep func(*domain.Payment) bool) []*domain.Payment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.Payment, 0)
	for _, p := range r.s.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ---------------------------------------------------------------------------
// Payment events, notifications, dedup
// ---------------------------------------------------------------------------

type PaymentEventLog struct{ s *Store }

func (s *Store) PaymentEvents() *PaymentEventLog { return &PaymentEventLog{s: s} }

func (l *PaymentEventLog) Record(_ context.Context, rec *domain.PaymentEventRecord) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	c := *rec
	l.s.events = append(l.s.events, &c)
	return nil
}

func (l *PaymentEventLog) ListByOutcome(_ context.Context, outcomes ...domain.EventOutcome) ([]*domain.PaymentEventRecord, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	out := make([]*domain.PaymentEventRecord, 0)
	for _, e := range l.s.events {
		if slices.Contains(outcomes, e.Outcome) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

type NotificationStore struct{ s *Store }

func (s *Store) NotificationStore() *NotificationStore { return &NotificationStore{s: s} }

func (n *NotificationStore) Save(_ context.Context, notif *domain.Notification) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	c := *notif
	c.Secret = ""
	n.s.notifications = append(n.s.notifications, &c)
	return nil
}

// Deduplicator keeps applied webhook event ids for the life of the process.
type Deduplicator struct{ s *Store }

func (s *Store) Deduplicator() *Deduplicator { return &Deduplicator{s: s} }

func (d *Deduplicator) IsDuplicate(_ context.Context, eventID string) (bool, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	_, ok := d.s.dedup[eventID]
	return ok, nil
}

func (d *Deduplicator) Mark(_ context.Context, eventID string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	d.s.dedup[eventID] = struct{}{}
	return nil
}
