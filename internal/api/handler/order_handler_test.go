package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

type stubOrderService struct {
	createFn      func(ctx context.Context, userID string) (*domain.Order, error)
	getFn         func(ctx context.Context, orderID, requestorID string) (*domain.Order, error)
	listFn        func(ctx context.Context, userID string) ([]*domain.Order, error)
	paymentsFn    func(ctx context.Context, userID string) ([]*domain.Payment, error)
	statusFn      func(ctx context.Context, orderID, requestorID string) (*ports.PaymentStatusView, error)
	statusByRefFn func(ctx context.Context, ref, requestorID string) (*ports.PaymentStatusView, error)
}

func (s *stubOrderService) CreateFromCart(ctx context.Context, userID string) (*domain.Order, error) {
	return s.createFn(ctx, userID)
}

func (s *stubOrderService) Get(ctx context.Context, orderID, requestorID string) (*domain.Order, error) {
	return s.getFn(ctx, orderID, requestorID)
}

func (s *stubOrderService) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.listFn(ctx, userID)
}

func (s *stubOrderService) ListPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return s.paymentsFn(ctx, userID)
}

func (s *stubOrderService) PaymentStatusByOrder(ctx context.Context, orderID, requestorID string) (*ports.PaymentStatusView, error) {
	return s.statusFn(ctx, orderID, requestorID)
}

func (s *stubOrderService) PaymentStatusByReference(ctx context.Context, ref, requestorID string) (*ports.PaymentStatusView, error) {
	return s.statusByRefFn(ctx, ref, requestorID)
}

func sampleOrder() *domain.Order {
	items := []domain.OrderItem{
		{ListingID: "listing-2", Title: "Desk lamp", Quantity: 2, UnitPrice: decimal.RequireFromString("35")},
		{ListingID: "listing-1", Title: "Calculus textbook", Quantity: 1, UnitPrice: decimal.RequireFromString("120")},
	}
	return &domain.Order{
		ID:         "order-1",
		UserID:     buyer.UserID,
		Status:     domain.OrderPending,
		Items:      items,
		TotalPrice: domain.TotalOf(items),
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOrderHandler_CreateFromCart(t *testing.T) {
	stub := &stubOrderService{
		createFn: func(ctx context.Context, userID string) (*domain.Order, error) {
			if userID != buyer.UserID {
				t.Fatalf("unexpected user %s", userID)
			}
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandler(stub, &stubCheckoutService{})

	c, rec := newContext(http.MethodPost, "/orders/cart", "", buyer)
	if err := h.CreateFromCart(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	resp := decode(t, rec)
	if resp["totalPrice"] != "190.00" {
		t.Fatalf("expected totalPrice 190.00, got %v", resp["totalPrice"])
	}
	items, _ := resp["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %v", resp["items"])
	}
	first, _ := items[0].(map[string]any)
	if first["subtotal"] != "70.00" || first["unitPrice"] != "35.00" {
		t.Fatalf("unexpected line item %+v", first)
	}
}

func TestOrderHandler_Get_ForeignVersusOwn(t *testing.T) {
	stub := &stubOrderService{
		getFn: func(ctx context.Context, orderID, requestorID string) (*domain.Order, error) {
			o := sampleOrder()
			if requestorID != o.UserID {
				return nil, domain.ErrForbidden
			}
			return o, nil
		},
	}
	h := NewOrderHandler(stub, &stubCheckoutService{})

	c, rec := newContext(http.MethodGet, "/orders/order-1", "", buyer)
	withParams(c, "id", "order-1")
	if err := h.Get(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected owner 200, got %d (%v)", rec.Code, err)
	}

	c, _ = newContext(http.MethodGet, "/orders/order-1", "", seller)
	withParams(c, "id", "order-1")
	if err := h.Get(c); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for foreign caller, got %v", err)
	}
}

func TestOrderHandler_Pay(t *testing.T) {
	checkout := &stubCheckoutService{
		orderFn: func(ctx context.Context, orderID, requestorID string) (*ports.CheckoutResult, error) {
			if orderID != "order-1" || requestorID != buyer.UserID {
				t.Fatalf("unexpected args %s %s", orderID, requestorID)
			}
			return &ports.CheckoutResult{PaymentID: "pay-1", OrderID: orderID, CheckoutURL: "https://pay.example/1", Reused: true}, nil
		},
	}
	h := NewOrderHandler(&stubOrderService{}, checkout)

	c, rec := newContext(http.MethodPost, "/orders/order-1/pay", "", buyer)
	withParams(c, "id", "order-1")
	if err := h.Pay(c); err != nil {
		t.Fatalf("pay: %v", err)
	}
	resp := decode(t, rec)
	if resp["checkoutUrl"] != "https://pay.example/1" || resp["reused"] != true {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestOrderHandler_PaymentStatusByReference(t *testing.T) {
	stub := &stubOrderService{
		statusByRefFn: func(ctx context.Context, ref, requestorID string) (*ports.PaymentStatusView, error) {
			if ref != "cs_test_1" || requestorID != buyer.UserID {
				t.Fatalf("unexpected args %s %s", ref, requestorID)
			}
			return &ports.PaymentStatusView{
				PaymentID:     "pay-1",
				OrderID:       "order-1",
				OrderStatus:   domain.OrderPaid,
				PaymentStatus: domain.PaymentSucceeded,
				Amount:        decimal.RequireFromString("120"),
				Currency:      "USD",
			}, nil
		},
	}
	h := NewOrderHandler(stub, &stubCheckoutService{})

	c, rec := newContext(http.MethodGet, "/orders/payments/cs_test_1/status", "", buyer)
	withParams(c, "ref", "cs_test_1")
	if err := h.PaymentStatusByReference(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	resp := decode(t, rec)
	if resp["paymentStatus"] != "SUCCEEDED" || resp["orderStatus"] != "PAID" || resp["amount"] != "120.00" {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestOrderHandler_PaymentStatus_NoPaymentYet(t *testing.T) {
	stub := &stubOrderService{
		statusFn: func(ctx context.Context, orderID, requestorID string) (*ports.PaymentStatusView, error) {
			return &ports.PaymentStatusView{OrderID: orderID, OrderStatus: domain.OrderPending}, nil
		},
	}
	h := NewOrderHandler(stub, &stubCheckoutService{})

	c, rec := newContext(http.MethodGet, "/orders/order-1/payment-status", "", buyer)
	withParams(c, "id", "order-1")
	if err := h.PaymentStatus(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	resp := decode(t, rec)
	if _, ok := resp["paymentStatus"]; ok {
		t.Fatalf("expected no paymentStatus before checkout, got %+v", resp)
	}
	if _, ok := resp["amount"]; ok {
		t.Fatalf("expected no amount before checkout, got %+v", resp)
	}
}

func TestOrderHandler_Histories(t *testing.T) {
	stub := &stubOrderService{
		listFn: func(ctx context.Context, userID string) ([]*domain.Order, error) {
			if userID != buyer.UserID {
				t.Fatalf("unexpected user %s", userID)
			}
			return []*domain.Order{sampleOrder()}, nil
		},
		paymentsFn: func(ctx context.Context, userID string) ([]*domain.Payment, error) {
			return []*domain.Payment{{ID: "pay-1", OrderID: "order-1", Amount: decimal.RequireFromString("190"), Status: domain.PaymentFailed, FailureReason: "card declined"}}, nil
		},
	}
	h := NewOrderHandler(stub, &stubCheckoutService{})

	c, rec := newContext(http.MethodGet, "/orders/user/u-buyer", "", buyer)
	withParams(c, "userId", buyer.UserID)
	if err := h.ListByUser(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("orders: %d %v", rec.Code, err)
	}

	c, rec = newContext(http.MethodGet, "/orders/user/u-buyer/payments", "", buyer)
	withParams(c, "userId", buyer.UserID)
	if err := h.ListPayments(c); err != nil {
		t.Fatalf("payments: %v", err)
	}
	if body := rec.Body.String(); body == "" || body[0] != '[' {
		t.Fatalf("expected JSON array, got %s", body)
	}
}
