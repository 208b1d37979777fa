package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"parchi/entity"
)

// Every gate-activity event lands in the audit log; storage is keyed by the
// event header id, so redeliveries are no-ops.

func (h Handler) AuditTicketScannedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"AuditTicketScanned",
		func(ctx context.Context, event *entity.TicketScanned) error {
			return h.storeAuditEvent(ctx, "TicketScanned", event.Header, event)
		},
	)
}

func (h Handler) AuditTicketRedeemedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"AuditTicketRedeemed",
		func(ctx context.Context, event *entity.TicketRedeemed) error {
			return h.storeAuditEvent(ctx, "TicketRedeemed", event.Header, event)
		},
	)
}

func (h Handler) AuditVerificationRejectedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"AuditVerificationRejected",
		func(ctx context.Context, event *entity.VerificationRejected) error {
			return h.storeAuditEvent(ctx, "VerificationRejected", event.Header, event)
		},
	)
}

func (h Handler) storeAuditEvent(ctx context.Context, name string, header entity.EventHeader, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal %s for audit: %w", name, err)
	}

	return h.auditRepo.StoreEvent(ctx, entity.AuditEvent{
		ID:          header.ID,
		PublishedAt: header.PublishedAt,
		Name:        name,
		Payload:     payload,
	})
}
