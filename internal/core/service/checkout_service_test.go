package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// ---------------------------------------------------------------------------
// CheckoutBid
// ---------------------------------------------------------------------------

func TestCheckoutService_CheckoutBid_CreatesOrderAndSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid := f.acceptedBid(t)

	res, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Reused {
		t.Errorf("first checkout should not be reported as reused")
	}
	if res.CheckoutURL == "" || res.ExternalReferenceID == "" {
		t.Fatalf("expected session details, got %+v", res)
	}
	if res.OrderID != BidOrderID(bid.ID) {
		t.Errorf("expected deterministic order id, got %s", res.OrderID)
	}

	order, err := f.store.Orders().FindByID(ctx, res.OrderID)
	if err != nil {
		t.Fatalf("order not stored: %v", err)
	}
	if order.Status != domain.OrderPending || order.BidID != bid.ID || order.UserID != buyerID {
		t.Errorf("unexpected order: %+v", order)
	}
	if !order.TotalPrice.Equal(price(100)) {
		t.Errorf("expected total to match the bid, got %s", order.TotalPrice)
	}
	if len(order.Items) != 1 || order.Items[0].Title != "Calculus textbook" {
		t.Errorf("expected one snapshotted item, got %+v", order.Items)
	}

	payment, err := f.store.Payments().FindByID(ctx, res.PaymentID)
	if err != nil {
		t.Fatalf("payment not stored: %v", err)
	}
	if payment.Status != domain.PaymentPending || payment.Currency != "CAD" || payment.Method != domain.PaymentMethodCard {
		t.Errorf("unexpected payment: %+v", payment)
	}
	if payment.ExternalReferenceID != res.ExternalReferenceID {
		t.Errorf("expected reference attached to payment")
	}

	linked, _ := f.store.Bids().FindByID(ctx, bid.ID)
	if linked.OrderID != order.ID {
		t.Errorf("expected bid linked to order, got %q", linked.OrderID)
	}

	if f.gateway.last.Description != "Order #"+order.ID || !f.gateway.last.Amount.Equal(price(100)) {
		t.Errorf("unexpected gateway request: %+v", f.gateway.last)
	}
}

func TestCheckoutService_CheckoutBid_Preconditions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pending := f.placeBid(t, buyerID, 100)

	_, err := f.checkout.CheckoutBid(ctx, pending.ID, buyerID)
	if !errors.Is(err, domain.ErrBidNotAccepted) || !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected ErrBidNotAccepted, got %v", err)
	}

	if _, err := f.bids.SetStatus(ctx, pending.ID, sellerID, domain.BidAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.checkout.CheckoutBid(ctx, pending.ID, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another user, got %v", err)
	}
	if _, err := f.checkout.CheckoutBid(ctx, pending.ID, sellerID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden for the seller, got %v", err)
	}
	if _, err := f.checkout.CheckoutBid(ctx, "missing", buyerID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if f.gateway.calls != 0 {
		t.Errorf("expected no gateway calls, got %d", f.gateway.calls)
	}
}

func TestCheckoutService_CheckoutBid_ReusesLiveSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid, first := f.checkedOut(t)

	second, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if !second.Reused {
		t.Errorf("expected reused session")
	}
	if second.CheckoutURL != first.CheckoutURL || second.PaymentID != first.PaymentID {
		t.Errorf("expected the same session, got %+v vs %+v", second, first)
	}
	if f.gateway.calls != 1 {
		t.Errorf("expected one gateway call, got %d", f.gateway.calls)
	}
}

func TestCheckoutService_CheckoutBid_ConcurrentConverge(t *testing.T) {
	f := newFixture()
	bid := f.acceptedBid(t)

	const n = 8
	results := make([]*ports.CheckoutResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.checkout.CheckoutBid(context.Background(), bid.ID, buyerID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if results[i].PaymentID != results[0].PaymentID || results[i].CheckoutURL != results[0].CheckoutURL {
			t.Fatalf("request %d diverged: %+v vs %+v", i, results[i], results[0])
		}
	}

	payments, _ := f.store.Payments().ListByUser(context.Background(), buyerID)
	if len(payments) != 1 {
		t.Errorf("expected one payment, got %d", len(payments))
	}
	if got := f.gateway.distinctSessions(); got != 1 {
		t.Errorf("expected one processor session, got %d", got)
	}
}

func TestCheckoutService_UpstreamFailureThenRetry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid := f.acceptedBid(t)

	f.gateway.err = errors.New("connection reset")
	_, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}

	f.gateway.err = nil
	res, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	payments, _ := f.store.Payments().ListByUser(ctx, buyerID)
	if len(payments) != 1 {
		t.Fatalf("expected the retry to reuse the payment, got %d payments", len(payments))
	}
	if payments[0].ID != res.PaymentID || payments[0].CheckoutURL == "" {
		t.Errorf("expected session attached on retry, got %+v", payments[0])
	}
}

func TestCheckoutService_NewPaymentAfterFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid, first := f.checkedOut(t)

	payload := f.parser.add("failed-1", failureEvent("evt_fail", first.ExternalReferenceID))
	if _, err := f.webhooks.Handle(ctx, payload, "good-sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	second, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if err != nil {
		t.Fatalf("checkout after failure: %v", err)
	}
	if second.PaymentID == first.PaymentID || second.Reused {
		t.Errorf("expected a fresh payment, got %+v", second)
	}
	if second.OrderID != first.OrderID {
		t.Errorf("expected the same order, got %s vs %s", second.OrderID, first.OrderID)
	}

	old, _ := f.store.Payments().FindByID(ctx, first.PaymentID)
	if old.Status != domain.PaymentFailed {
		t.Errorf("expected old payment to stay FAILED, got %s", old.Status)
	}
}

func TestCheckoutService_PaidBidCannotBeCheckedOut(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid, res := f.checkedOut(t)

	payload := f.parser.add("ok-1", successEvent("evt_ok", res.ExternalReferenceID))
	if _, err := f.webhooks.Handle(ctx, payload, "good-sig"); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	if _, err := f.checkout.CheckoutBid(ctx, bid.ID, buyerID); !errors.Is(err, domain.ErrBidNotAccepted) {
		t.Errorf("expected ErrBidNotAccepted for a paid bid, got %v", err)
	}
	if _, err := f.checkout.CheckoutOrder(ctx, res.OrderID, buyerID); !errors.Is(err, domain.ErrOrderNotPayable) {
		t.Errorf("expected ErrOrderNotPayable for a paid order, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// CheckoutOrder
// ---------------------------------------------------------------------------

func TestCheckoutService_CheckoutOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.PutCart(&domain.Cart{UserID: buyerID, Items: []domain.CartItem{{ListingID: "listing-1", Quantity: 1}}})

	order, err := f.orders.CreateFromCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := f.checkout.CheckoutOrder(ctx, order.ID, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	res, err := f.checkout.CheckoutOrder(ctx, order.ID, buyerID)
	if err != nil {
		t.Fatalf("checkout order: %v", err)
	}
	if res.OrderID != order.ID {
		t.Errorf("expected order %s, got %s", order.ID, res.OrderID)
	}
	if !f.gateway.last.Amount.Equal(price(120)) || f.gateway.last.BidID != "" {
		t.Errorf("unexpected gateway request: %+v", f.gateway.last)
	}
}

func TestCheckoutService_CheckoutOrder_BidNoLongerAccepted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	bid, res := f.checkedOut(t)

	if err := f.store.Bids().UpdateStatus(ctx, bid.ID, domain.BidAccepted, domain.BidExpired, testEpoch); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if _, err := f.checkout.CheckoutOrder(ctx, res.OrderID, buyerID); !errors.Is(err, domain.ErrBidNotAccepted) {
		t.Errorf("expected ErrBidNotAccepted, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Checkout racing the expiry sweep
// ---------------------------------------------------------------------------

func TestCheckoutService_CheckoutDuringSweep_KeepsBid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.bids.(*bidService).now = func() time.Time { return testEpoch }
	bid := f.acceptedBid(t)

	sweepAt := testEpoch.Add(DefaultBidPaymentWindow + time.Hour)
	f.checkout.(*checkoutService).now = func() time.Time { return sweepAt }

	// the sweep finds no payment, then the buyer checks out before it expires the bid
	var res *ports.CheckoutResult
	var checkoutErr error
	payments := &interleavedPayments{PaymentRepository: f.store.Payments()}
	payments.afterExists = func() {
		res, checkoutErr = f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	}
	sweeper := NewBidService(f.store.Bids(), f.store.Listings(), payments, f.notifier, BidExpiryPolicy{}, zerolog.Nop())

	n, err := sweeper.ExpireStale(ctx, sweepAt)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if checkoutErr != nil || res == nil || res.CheckoutURL == "" {
		t.Fatalf("expected a checkout session, got %+v (%v)", res, checkoutErr)
	}
	if n != 0 {
		t.Errorf("expected no bid expired, got %d", n)
	}
	got, _ := f.store.Bids().FindByID(ctx, bid.ID)
	if got.Status != domain.BidAccepted {
		t.Errorf("expected bid to stay ACCEPTED, got %s", got.Status)
	}
	if len(f.notifier.ofType(domain.NotifyBidExpired)) != 0 {
		t.Errorf("expected no expiry notification")
	}
}

func TestCheckoutService_BidExpiresBeforePayment_FailsCheckout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.bids.(*bidService).now = func() time.Time { return testEpoch }
	bid := f.acceptedBid(t)

	checkoutAt := testEpoch.Add(time.Hour)
	payments := &interleavedPayments{PaymentRepository: f.store.Payments()}
	payments.beforeCreate = func() {
		if _, err := f.bids.ExpireStale(ctx, checkoutAt.Add(DefaultBidPaymentWindow+time.Hour)); err != nil {
			t.Errorf("expire: %v", err)
		}
	}
	checkout := NewCheckoutService(f.store.Bids(), f.store.Orders(), payments, f.store.Listings(), f.gateway, "cad", zerolog.Nop())
	checkout.(*checkoutService).now = func() time.Time { return checkoutAt }

	res, err := checkout.CheckoutBid(ctx, bid.ID, buyerID)
	if !errors.Is(err, domain.ErrBidNotAccepted) {
		t.Fatalf("expected ErrBidNotAccepted, got %+v (%v)", res, err)
	}
	if f.gateway.calls != 0 {
		t.Errorf("expected no processor call, got %d", f.gateway.calls)
	}

	got, _ := f.store.Bids().FindByID(ctx, bid.ID)
	if got.Status != domain.BidExpired {
		t.Errorf("expected EXPIRED, got %s", got.Status)
	}
	payment, err := f.store.Payments().FindLatestByOrder(ctx, BidOrderID(bid.ID))
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if payment.Status != domain.PaymentFailed || payment.CheckoutURL != "" {
		t.Errorf("expected a closed payment without session, got %+v", payment)
	}
	if _, err := f.store.Payments().FindActiveByOrder(ctx, BidOrderID(bid.ID)); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Errorf("expected no live payment, got %v", err)
	}
}

func TestCheckoutService_SweepClockAhead_BidRestoredAndPaid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.bids.(*bidService).now = func() time.Time { return testEpoch }
	bid := f.acceptedBid(t)

	checkoutAt := testEpoch.Add(time.Hour)
	f.checkout.(*checkoutService).now = func() time.Time { return checkoutAt }

	var res *ports.CheckoutResult
	var checkoutErr error
	payments := &interleavedPayments{PaymentRepository: f.store.Payments()}
	payments.afterExists = func() {
		res, checkoutErr = f.checkout.CheckoutBid(ctx, bid.ID, buyerID)
	}
	sweeper := NewBidService(f.store.Bids(), f.store.Listings(), payments, f.notifier, BidExpiryPolicy{}, zerolog.Nop())

	// the sweep runs far enough ahead that the checkout's refresh is already idle again
	n, err := sweeper.ExpireStale(ctx, checkoutAt.Add(DefaultBidPaymentWindow+2*time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if checkoutErr != nil || res == nil || res.CheckoutURL == "" {
		t.Fatalf("expected a checkout session, got %+v (%v)", res, checkoutErr)
	}
	if n != 0 || len(f.notifier.ofType(domain.NotifyBidExpired)) != 0 {
		t.Fatalf("expected the bid kept, got %d expired", n)
	}

	payload := f.parser.add("evt-late", successEvent("evt_late", res.ExternalReferenceID))
	out, err := f.webhooks.Handle(ctx, payload, "good-sig")
	if err != nil || out.Outcome != domain.OutcomeApplied {
		t.Fatalf("expected applied, got %+v (%v)", out, err)
	}
	want := settledState{domain.PaymentSucceeded, domain.OrderPaid, domain.BidPaid}
	if got := f.state(t, res.PaymentID, res.OrderID, bid.ID); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
