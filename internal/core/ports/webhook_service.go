package ports

import (
	"context"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
)

// WebhookResult describes how an accepted webhook delivery was handled.
type WebhookResult struct {
	EventID string
	Outcome domain.EventOutcome
}

// WebhookService consumes payment-processor callbacks.
type WebhookService interface {
	// Handle returns an error only for deliveries that must not be
	// acknowledged: bad signature, undecodable body, or a storage failure
	// the processor should retry.
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error)
	PendingReconciliation(ctx context.Context) ([]*domain.PaymentEventRecord, error)
}
