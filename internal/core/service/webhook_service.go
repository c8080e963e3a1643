package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

type webhookService struct {
	parser   ports.PaymentEventParser
	payments ports.PaymentRepository
	orders   ports.OrderRepository
	bids     ports.BidRepository
	events   ports.PaymentEventLog
	dedup    ports.EventDeduplicator
	notifier ports.Notifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewWebhookService returns a WebhookService implementation.
func NewWebhookService(
	parser ports.PaymentEventParser,
	payments ports.PaymentRepository,
	orders ports.OrderRepository,
	bids ports.BidRepository,
	events ports.PaymentEventLog,
	dedup ports.EventDeduplicator,
	notifier ports.Notifier,
	log zerolog.Logger,
) ports.WebhookService {
	return &webhookService{
		parser:   parser,
		payments: payments,
		orders:   orders,
		bids:     bids,
		events:   events,
		dedup:    dedup,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

// Handle verifies, decodes and applies one webhook delivery. Every mutation
// is conditional on the expected current status, so applying the same event
// repeatedly converges on the state of applying it once.
func (s *webhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (*ports.WebhookResult, error) {
	// 1. Authenticity and shape; nothing is touched before this passes.
	evt, err := s.parser.ParseEvent(payload, signatureHeader)
	if err != nil {
		return nil, err
	}

	if evt.Kind == domain.EventIgnored {
		s.log.Debug().Str("event_id", evt.ID).Str("type", evt.Type).Msg("webhook event ignored")
		return &ports.WebhookResult{EventID: evt.ID, Outcome: domain.OutcomeIgnored}, nil
	}

	// 2. Fast path for deliveries already applied in full.
	isDup, err := s.dedup.IsDuplicate(ctx, evt.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", evt.ID).Msg("dedup check failed, processing anyway")
	} else if isDup {
		s.log.Debug().Str("event_id", evt.ID).Msg("duplicate webhook event skipped")
		return &ports.WebhookResult{EventID: evt.ID, Outcome: domain.OutcomeReplayed}, nil
	}

	// 3. Resolve the payment; unknown references are parked for an operator.
	payment, err := s.payments.FindByExternalReference(ctx, evt.ExternalReferenceID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		s.log.Warn().
			Str("event_id", evt.ID).
			Str("external_ref", evt.ExternalReferenceID).
			Msg("webhook references unknown payment, recorded for reconciliation")
		s.record(ctx, evt, "", domain.OutcomeUnmatched, "no payment with this reference")
		return &ports.WebhookResult{EventID: evt.ID, Outcome: domain.OutcomeUnmatched}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("webhook: find payment: %w", err)
	}

	// 4. Settle the payment.
	target := domain.PaymentSucceeded
	if evt.Kind == domain.EventSettlementFailed {
		target = domain.PaymentFailed
	}

	outcome, payment, err := s.settle(ctx, evt, payment, target)
	if err != nil {
		return nil, err
	}
	if outcome == domain.OutcomeConflict {
		s.log.Warn().
			Str("event_id", evt.ID).
			Str("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Str("event_status", string(target)).
			Msg("webhook conflicts with settled payment, recorded for reconciliation")
		s.record(ctx, evt, payment.ID, outcome, fmt.Sprintf("payment already %s", payment.Status))
		s.markDone(ctx, evt.ID)
		return &ports.WebhookResult{EventID: evt.ID, Outcome: outcome}, nil
	}

	// 5. Cascade. Re-run on every replay so a partially applied delivery
	// completes on redelivery.
	if target == domain.PaymentSucceeded {
		if err := s.cascadeSuccess(ctx, payment); err != nil {
			return nil, err
		}
	}

	// 6. Only a fully applied event short-circuits future deliveries.
	s.markDone(ctx, evt.ID)
	s.record(ctx, evt, payment.ID, outcome, "")

	if outcome == domain.OutcomeApplied {
		s.notifySettled(payment, target)
	}

	s.log.Info().
		Str("event_id", evt.ID).
		Str("payment_id", payment.ID).
		Str("status", string(target)).
		Str("outcome", string(outcome)).
		Msg("webhook event processed")

	return &ports.WebhookResult{EventID: evt.ID, Outcome: outcome}, nil
}

// settle moves a PENDING payment to target. An already-settled payment in
// target is a replay; in the other terminal status it is a conflict.
func (s *webhookService) settle(ctx context.Context, evt *domain.PaymentEvent, p *domain.Payment, target domain.PaymentStatus) (domain.EventOutcome, *domain.Payment, error) {
	if p.Status == target {
		return domain.OutcomeReplayed, p, nil
	}
	if p.Status != domain.PaymentPending {
		return domain.OutcomeConflict, p, nil
	}

	now := s.now().UTC()
	err := s.payments.Settle(ctx, p.ID, domain.Settlement{
		Status:        target,
		TransactionID: evt.TransactionID,
		FailureReason: evt.FailureReason,
		At:            now,
	})
	if errors.Is(err, domain.ErrStatusConflict) {
		// a concurrent delivery settled it first
		current, findErr := s.payments.FindByID(ctx, p.ID)
		if findErr != nil {
			return "", nil, fmt.Errorf("webhook: reload payment: %w", findErr)
		}
		if current.Status == target {
			return domain.OutcomeReplayed, current, nil
		}
		return domain.OutcomeConflict, current, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("webhook: settle payment: %w", err)
	}

	settled := *p
	settled.Status = target
	settled.TransactionID = evt.TransactionID
	settled.FailureReason = evt.FailureReason
	settled.UpdatedAt = now
	return domain.OutcomeApplied, &settled, nil
}

// cascadeSuccess marks the order and the bid paid. A failed settlement needs
// no cascade: the order stays PENDING and the bid ACCEPTED so the buyer can
// start a new checkout.
func (s *webhookService) cascadeSuccess(ctx context.Context, p *domain.Payment) error {
	now := s.now().UTC()

	err := s.orders.UpdateStatus(ctx, p.OrderID, domain.OrderPending, domain.OrderPaid, now)
	if errors.Is(err, domain.ErrStatusConflict) {
		order, findErr := s.orders.FindByID(ctx, p.OrderID)
		switch {
		case findErr != nil:
			return fmt.Errorf("webhook: reload order: %w", findErr)
		case order.Status != domain.OrderPaid && order.Status != domain.OrderCompleted:
			s.log.Error().
				Str("payment_id", p.ID).
				Str("order_id", order.ID).
				Str("order_status", string(order.Status)).
				Msg("paid payment on order that cannot be marked paid")
		}
	} else if err != nil {
		return fmt.Errorf("webhook: mark order paid: %w", err)
	}

	if p.BidID == "" {
		return nil
	}

	err = s.bids.UpdateStatus(ctx, p.BidID, domain.BidAccepted, domain.BidPaid, now)
	if errors.Is(err, domain.ErrStatusConflict) {
		bid, findErr := s.bids.FindByID(ctx, p.BidID)
		switch {
		case findErr != nil:
			return fmt.Errorf("webhook: reload bid: %w", findErr)
		case bid.Status != domain.BidPaid:
			s.log.Error().
				Str("payment_id", p.ID).
				Str("bid_id", bid.ID).
				Str("bid_status", string(bid.Status)).
				Msg("paid payment on bid that cannot be marked paid")
		}
	} else if err != nil {
		return fmt.Errorf("webhook: mark bid paid: %w", err)
	}

	return nil
}

func (s *webhookService) PendingReconciliation(ctx context.Context) ([]*domain.PaymentEventRecord, error) {
	return s.events.ListByOutcome(ctx, domain.OutcomeUnmatched, domain.OutcomeConflict)
}

// record writes the audit entry. Failure is logged, never returned.
func (s *webhookService) record(ctx context.Context, evt *domain.PaymentEvent, paymentID string, outcome domain.EventOutcome, detail string) {
	rec := &domain.PaymentEventRecord{
		EventID:             evt.ID,
		Type:                evt.Type,
		ExternalReferenceID: evt.ExternalReferenceID,
		PaymentID:           paymentID,
		Outcome:             outcome,
		Detail:              detail,
		ReceivedAt:          s.now().UTC(),
	}
	if err := s.events.Record(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("event_id", evt.ID).Str("outcome", string(outcome)).Msg("failed to record webhook event")
	}
}

func (s *webhookService) markDone(ctx context.Context, eventID string) {
	if err := s.dedup.Mark(ctx, eventID); err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to set dedup key")
	}
}

func (s *webhookService) notifySettled(p *domain.Payment, status domain.PaymentStatus) {
	if s.notifier == nil {
		return
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Type:      domain.NotifyPaymentSucceeded,
		Message:   fmt.Sprintf("Payment of %s %s received.", p.Amount.StringFixed(2), p.Currency),
		CreatedAt: s.now().UTC(),
	}
	if status == domain.PaymentFailed {
		n.Type = domain.NotifyPaymentFailed
		n.Message = "Your payment did not go through. You can retry checkout from your order."
	}
	s.notifier.Notify(n)
}
