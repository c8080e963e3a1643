package domain

import "time"

// PaymentEventKind is the processor-neutral meaning of a webhook event.
type PaymentEventKind string

const (
	EventSettlementSucceeded PaymentEventKind = "settlement_succeeded"
	EventSettlementFailed    PaymentEventKind = "settlement_failed"
	EventIgnored             PaymentEventKind = "ignored"
)

// PaymentEvent is a verified, decoded payment-processor callback.
type PaymentEvent struct {
	ID                  string
	Type                string
	Kind                PaymentEventKind
	ExternalReferenceID string
	TransactionID       string
	FailureReason       string
}

// EventOutcome records what the webhook processor did with an event.
type EventOutcome string

const (
	OutcomeApplied   EventOutcome = "applied"
	OutcomeReplayed  EventOutcome = "replayed"
	OutcomeUnmatched EventOutcome = "unmatched"
	OutcomeConflict  EventOutcome = "conflict"
	OutcomeIgnored   EventOutcome = "ignored"
)

// NeedsReconciliation reports whether an operator has to look at the event.
func (o EventOutcome) NeedsReconciliation() bool {
	return o == OutcomeUnmatched || o == OutcomeConflict
}

// PaymentEventRecord is the audit entry written for every handled event.
type PaymentEventRecord struct {
	EventID             string       `json:"event_id"`
	Type                string       `json:"type"`
	ExternalReferenceID string       `json:"external_reference_id,omitempty"`
	PaymentID           string       `json:"payment_id,omitempty"`
	Outcome             EventOutcome `json:"outcome"`
	Detail              string       `json:"detail,omitempty"`
	ReceivedAt          time.Time    `json:"received_at"`
}
