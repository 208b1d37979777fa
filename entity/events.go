package entity

import (
	"time"

	"github.com/google/uuid"
)

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

// TicketScanned is published after the scan phase created a PENDING
// verification record. The ticket itself is untouched at this point.
type TicketScanned struct {
	Header         EventHeader `json:"header"`
	TicketID       string      `json:"ticket_id"`
	EventID        string      `json:"event_id"`
	VerificationID string      `json:"verification_id"`
	VerifyingAgent string      `json:"verifying_agent"`
	GateID         string      `json:"gate_id"`
}

// TicketRedeemed is published through the outbox inside the redemption
// transaction, so it exists iff the ticket is USED.
type TicketRedeemed struct {
	Header         EventHeader `json:"header"`
	TicketID       string      `json:"ticket_id"`
	EventID        string      `json:"event_id"`
	AssetID        string      `json:"asset_id"`
	VerificationID string      `json:"verification_id"`
	VerifyingAgent string      `json:"verifying_agent"`
	GateID         string      `json:"gate_id"`
	UsedAt         time.Time   `json:"used_at"`
}

// AuditEvent is the append-only copy of a domain event kept for later
// investigation of gate activity.
type AuditEvent struct {
	ID          string    `db:"event_id"`
	PublishedAt time.Time `db:"published_at"`
	Name        string    `db:"event_name"`
	Payload     []byte    `db:"event_payload"`
}

// VerificationRejected records a failed gate-check attempt. TicketID and
// VerificationID may be empty when the failure happened before the payload
// could be resolved to a ticket.
type VerificationRejected struct {
	Header         EventHeader `json:"header"`
	TicketID       string      `json:"ticket_id"`
	EventID        string      `json:"event_id"`
	VerificationID string      `json:"verification_id"`
	VerifyingAgent string      `json:"verifying_agent"`
	GateID         string      `json:"gate_id"`
	Reason         string      `json:"reason"`
	RawPayload     string      `json:"raw_payload,omitempty"`
}
