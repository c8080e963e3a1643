package service

import (
	"context"
	"errors"
	"testing"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

func TestOrderService_CreateFromCart_SnapshotsPrices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.PutListing(&domain.Listing{
		ID: "listing-2", SellerID: "seller-2", Title: "Lab coat", Price: price(35),
		Quantity: 4, Status: domain.ListingActive,
	})
	f.store.PutCart(&domain.Cart{UserID: buyerID, Items: []domain.CartItem{
		{ListingID: "listing-1", Quantity: 1},
		{ListingID: "listing-2", Quantity: 2},
	}})

	order, err := f.orders.CreateFromCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != domain.OrderPending || order.UserID != buyerID {
		t.Errorf("unexpected order: %+v", order)
	}
	if !order.TotalPrice.Equal(price(190)) {
		t.Errorf("expected total 190, got %s", order.TotalPrice)
	}

	// a later price change does not touch the order
	f.store.PutListing(&domain.Listing{
		ID: "listing-2", SellerID: "seller-2", Title: "Lab coat", Price: price(99),
		Quantity: 4, Status: domain.ListingActive,
	})
	stored, err := f.orders.Get(ctx, order.ID, buyerID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.Items[1].UnitPrice.Equal(price(35)) {
		t.Errorf("expected snapshotted unit price, got %s", stored.Items[1].UnitPrice)
	}

	if _, err := f.orders.CreateFromCart(ctx, buyerID); !errors.Is(err, domain.ErrEmptyCart) {
		t.Errorf("expected the cart cleared after ordering, got %v", err)
	}
}

func TestOrderService_CreateFromCart_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.PutListing(&domain.Listing{ID: "sold", SellerID: "seller-2", Title: "Chair", Price: price(10), Quantity: 1, Status: domain.ListingSold})

	cases := []struct {
		name    string
		user    string
		items   []domain.CartItem
		wantErr error
	}{
		{"no cart", "nobody", nil, domain.ErrEmptyCart},
		{"empty cart", buyerID, []domain.CartItem{}, domain.ErrEmptyCart},
		{"zero quantity", buyerID, []domain.CartItem{{ListingID: "listing-1", Quantity: 0}}, domain.ErrValidation},
		{"over quantity", buyerID, []domain.CartItem{{ListingID: "listing-1", Quantity: 2}}, domain.ErrListingUnavailable},
		{"sold listing", buyerID, []domain.CartItem{{ListingID: "sold", Quantity: 1}}, domain.ErrListingUnavailable},
		{"own listing", sellerID, []domain.CartItem{{ListingID: "listing-1", Quantity: 1}}, domain.ErrValidation},
		{"missing listing", buyerID, []domain.CartItem{{ListingID: "gone", Quantity: 1}}, domain.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.items != nil {
				f.store.PutCart(&domain.Cart{UserID: tc.user, Items: tc.items})
			}
			if _, err := f.orders.CreateFromCart(ctx, tc.user); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestOrderService_OwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, res := f.checkedOut(t)

	if _, err := f.orders.Get(ctx, res.OrderID, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.orders.PaymentStatusByOrder(ctx, res.OrderID, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.orders.PaymentStatusByReference(ctx, res.ExternalReferenceID, otherID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := f.orders.PaymentStatusByReference(ctx, "cs_missing", buyerID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	orders, _ := f.orders.ListByUser(ctx, buyerID)
	payments, _ := f.orders.ListPayments(ctx, buyerID)
	if len(orders) != 1 || len(payments) != 1 {
		t.Errorf("expected one order and one payment, got %d / %d", len(orders), len(payments))
	}
}

func TestOrderService_PaymentStatusWithoutPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.PutCart(&domain.Cart{UserID: buyerID, Items: []domain.CartItem{{ListingID: "listing-1", Quantity: 1}}})
	order, err := f.orders.CreateFromCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := f.orders.PaymentStatusByOrder(ctx, order.ID, buyerID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.PaymentID != "" || view.OrderStatus != domain.OrderPending {
		t.Errorf("expected order-only view, got %+v", view)
	}
}
