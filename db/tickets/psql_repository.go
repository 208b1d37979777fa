package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"parchi/entity"
	"parchi/pubsub/bus"
	"parchi/pubsub/outbox"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Store(ctx context.Context, ticket entity.Ticket) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO tickets (ticket_id, event_id, ticket_number, holder_identity, asset_id, purchase_price, status, qr_data, purchased_at)
		VALUES (:ticket_id, :event_id, :ticket_number, :holder_identity, :asset_id, :purchase_price, :status, :qr_data, :purchased_at)
		ON CONFLICT DO NOTHING -- ignore if already exists
	`, ticket)
	return err
}

func (r *PostgresRepository) FindByID(ctx context.Context, ticketID string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := r.db.GetContext(ctx, &ticket, `
		SELECT ticket_id, event_id, ticket_number, holder_identity, asset_id, purchase_price, status, qr_data, purchased_at, used_at
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrTicketNotFound
	}
	return ticket, err
}

// FindByPayload resolves a decoded QR payload to its ticket row. The
// (event_id, ticket_number) pair is the primary key of the lookup; the
// 8-char asset prefix is the fallback for payloads whose numbering the
// directory does not know (for example after a re-issue).
func (r *PostgresRepository) FindByPayload(ctx context.Context, eventID string, ticketNumber int, assetPrefix string) (entity.Ticket, error) {
	var ticket entity.Ticket
	err := r.db.GetContext(ctx, &ticket, `
		SELECT ticket_id, event_id, ticket_number, holder_identity, asset_id, purchase_price, status, qr_data, purchased_at, used_at
		FROM tickets
		WHERE event_id = $1 AND ticket_number = $2
	`, eventID, ticketNumber)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, err
	}

	err = r.db.GetContext(ctx, &ticket, `
		SELECT ticket_id, event_id, ticket_number, holder_identity, asset_id, purchase_price, status, qr_data, purchased_at, used_at
		FROM tickets
		WHERE event_id = $1 AND asset_id LIKE $2 || '%'
		ORDER BY purchased_at
		LIMIT 1
	`, eventID, assetPrefix)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Ticket{}, entity.ErrTicketNotFound
	}
	return ticket, err
}

// Redeem performs the ACTIVE->USED transition as one transaction: the
// conditional ticket update, the terminal VERIFIED verification record, and
// the TicketRedeemed event going out through the outbox. The conditional
// UPDATE is the only synchronization primitive; zero affected rows means a
// concurrent redemption already won.
func (r *PostgresRepository) Redeem(ctx context.Context, redemption entity.Redemption) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		// nothing was sent yet, safe to retry
		return fmt.Errorf("could not begin redemption transaction: %w",
			errors.Join(entity.ErrStorageUnavailable, entity.ErrRetrySafe))
	}

	defer func() {
		if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				err = errors.Join(err, rollbackErr)
			}
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			// outcome ambiguous, never retried blindly; caller re-queries
			err = fmt.Errorf("could not commit redemption: %w",
				errors.Join(commitErr, entity.ErrStorageUnavailable))
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET status = $3, used_at = $4
		WHERE ticket_id = $1 AND status = $2
	`, redemption.TicketID, entity.TicketStatusActive, entity.TicketStatusUsed, redemption.UsedAt)
	if err != nil {
		return fmt.Errorf("could not update ticket status: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var current struct {
			Status string     `db:"status"`
			UsedAt *time.Time `db:"used_at"`
		}
		getErr := tx.GetContext(ctx, &current, `
			SELECT status, used_at FROM tickets WHERE ticket_id = $1
		`, redemption.TicketID)
		if errors.Is(getErr, sql.ErrNoRows) {
			return entity.ErrTicketNotFound
		}
		if getErr != nil {
			return getErr
		}
		return entity.AlreadyRedeemedError{UsedAt: current.UsedAt}
	}

	var ticket entity.Ticket
	err = tx.GetContext(ctx, &ticket, `
		SELECT ticket_id, event_id, ticket_number, asset_id FROM tickets WHERE ticket_id = $1
	`, redemption.TicketID)
	if err != nil {
		return fmt.Errorf("could not load redeemed ticket: %w", err)
	}

	metadata := entity.Metadata{}
	for k, v := range redemption.Metadata {
		metadata[k] = v
	}
	metadata[entity.MetaEventID] = ticket.EventID
	metadata[entity.MetaStaffID] = redemption.VerifyingAgent
	metadata[entity.MetaGateID] = redemption.GateID
	metadata[entity.MetaClaimed] = "true"
	metadata[entity.MetaClaimedAt] = redemption.UsedAt.UTC().Format(time.RFC3339)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verifications (verification_id, event_id, ticket_id, verifying_agent, status, location, metadata, created_at, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (verification_id) DO UPDATE
		SET status = EXCLUDED.status,
			verifying_agent = EXCLUDED.verifying_agent,
			verified_at = EXCLUDED.verified_at,
			metadata = verifications.metadata || EXCLUDED.metadata
	`, redemption.VerificationID, ticket.EventID, redemption.TicketID, redemption.VerifyingAgent,
		entity.VerificationStatusVerified, redemption.GateID, metadata, redemption.UsedAt)
	if err != nil {
		return fmt.Errorf("could not upsert verification record: %w", err)
	}

	outboxPublisher, err := outbox.NewPublisherForTx(tx.Tx)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	eventBus, err := bus.NewEventBus(outboxPublisher)
	if err != nil {
		return err
	}

	err = eventBus.Publish(ctx, entity.TicketRedeemed{
		Header:         entity.NewEventHeaderWithIdempotencyKey(redemption.VerificationID),
		TicketID:       ticket.TicketID,
		EventID:        ticket.EventID,
		AssetID:        ticket.AssetID,
		VerificationID: redemption.VerificationID,
		VerifyingAgent: redemption.VerifyingAgent,
		GateID:         redemption.GateID,
		UsedAt:         redemption.UsedAt,
	})
	if err != nil {
		return fmt.Errorf("could not publish redemption event: %w", err)
	}

	return nil
}
