package event

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"parchi/entity"
)

// RequestAssetMirrorRefreshHandler asks for the on-chain mirror to be
// re-read after a redemption, so the asset's claimed attribute eventually
// shows up in the display mirror.
func (h Handler) RequestAssetMirrorRefreshHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RequestAssetMirrorRefresh",
		func(ctx context.Context, event *entity.TicketRedeemed) error {
			if event.AssetID == "" {
				log.FromContext(ctx).WithField("ticket_id", event.TicketID).
					Warn("Redeemed ticket has no asset id, skipping mirror refresh")
				return nil
			}

			return h.commandBus.Send(ctx, entity.RefreshAssetMirror{
				Header:   entity.NewEventHeaderWithIdempotencyKey(event.Header.IdempotencyKey),
				TicketID: event.TicketID,
				AssetID:  event.AssetID,
			})
		},
	)
}
