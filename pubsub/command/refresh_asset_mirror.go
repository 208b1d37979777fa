package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"parchi/entity"
)

// RefreshAssetMirrorHandler reads the asset from the ledger and persists
// the snapshot to the display mirror. Oracle outages bubble up so the
// router's retry middleware tries again later; a missing asset is final.
func (h Handler) RefreshAssetMirrorHandler() cqrs.CommandHandler {
	return cqrs.NewCommandHandler(
		"RefreshAssetMirror",
		func(ctx context.Context, command *entity.RefreshAssetMirror) error {
			snapshot, err := h.oracle.FetchAsset(ctx, command.AssetID)
			if errors.Is(err, entity.ErrAssetNotFound) {
				log.FromContext(ctx).WithField("asset_id", command.AssetID).
					Warn("Asset disappeared from the ledger, mirror not refreshed")
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not fetch asset %s: %w", command.AssetID, err)
			}

			attributes := entity.Metadata{}
			for k, v := range snapshot.Attributes {
				attributes[k] = v
			}

			return h.mirrorRepo.Upsert(ctx, entity.AssetMirror{
				AssetID:     snapshot.AssetID,
				TicketID:    command.TicketID,
				Owner:       snapshot.Owner,
				IsFrozen:    snapshot.IsFrozen,
				Attributes:  attributes,
				RefreshedAt: time.Now().UTC(),
			})
		},
	)
}
