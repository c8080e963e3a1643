package handler

import (
	"github.com/shopspring/decimal"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

// --- Domain → Response ---

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toUserResponse(u *domain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Verified:    u.Verified,
		Authorities: u.Authorities,
		CreatedAt:   u.CreatedAt,
	}
}

func toBidResponse(b *domain.Bid) bidResponse {
	return bidResponse{
		ID:              b.ID,
		ListingID:       b.ListingID,
		BidderID:        b.BidderID,
		SellerID:        b.SellerID,
		ProposedPrice:   money(b.ProposedPrice),
		AdditionalTerms: b.AdditionalTerms,
		Status:          string(b.Status),
		OrderID:         b.OrderID,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func toBidResponses(bids []*domain.Bid) []bidResponse {
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	return out
}

func toOrderResponse(o *domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ListingID: it.ListingID,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: money(it.UnitPrice),
			Subtotal:  money(it.Subtotal()),
		})
	}
	return orderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		BidID:      o.BidID,
		Status:     string(o.Status),
		TotalPrice: money(o.TotalPrice),
		Items:      items,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toOrderResponses(orders []*domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toCheckoutResponse(r *ports.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		PaymentID:           r.PaymentID,
		OrderID:             r.OrderID,
		ExternalReferenceID: r.ExternalReferenceID,
		CheckoutURL:         r.CheckoutURL,
		Reused:              r.Reused,
	}
}

func toPaymentResponses(payments []*domain.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			ID:                  p.ID,
			OrderID:             p.OrderID,
			BidID:               p.BidID,
			ExternalReferenceID: p.ExternalReferenceID,
			Amount:              money(p.Amount),
			Currency:            p.Currency,
			Method:              p.Method,
			Status:              string(p.Status),
			TransactionID:       p.TransactionID,
			FailureReason:       p.FailureReason,
			CreatedAt:           p.CreatedAt,
			UpdatedAt:           p.UpdatedAt,
		})
	}
	return out
}

func toPaymentStatusResponse(v *ports.PaymentStatusView) paymentStatusResponse {
	resp := paymentStatusResponse{
		PaymentID:     v.PaymentID,
		OrderID:       v.OrderID,
		OrderStatus:   string(v.OrderStatus),
		PaymentStatus: string(v.PaymentStatus),
		Currency:      v.Currency,
		FailureReason: v.FailureReason,
		UpdatedAt:     v.UpdatedAt,
	}
	if v.PaymentID != "" {
		resp.Amount = money(v.Amount)
	}
	return resp
}

func toReconciliationResponse(records []*domain.PaymentEventRecord) reconciliationResponse {
	events := make([]reconciliationEntry, 0, len(records))
	for _, r := range records {
		events = append(events, reconciliationEntry{
			EventID:             r.EventID,
			Type:                r.Type,
			ExternalReferenceID: r.ExternalReferenceID,
			PaymentID:           r.PaymentID,
			Outcome:             string(r.Outcome),
			Detail:              r.Detail,
			ReceivedAt:          r.ReceivedAt,
		})
	}
	return reconciliationResponse{Count: len(events), Events: events}
}
