package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"parchi/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PostgresRepository{db: db}
}

// Create stores a new PENDING verification record. Idempotent: replaying the
// same verification ID does nothing.
func (r *PostgresRepository) Create(ctx context.Context, record entity.VerificationRecord) error {
	_, err := r.db.NamedExecContext(
		ctx,
		`
		INSERT INTO
			verifications (verification_id, event_id, ticket_id, verifying_agent, status, location, metadata, created_at)
		VALUES
			(:verification_id, :event_id, :ticket_id, :verifying_agent, :status, :location, :metadata, :created_at)
		ON CONFLICT DO NOTHING`,
		record,
	)
	if err != nil {
		return fmt.Errorf("could not save verification: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, verificationID string) (entity.VerificationRecord, error) {
	var record entity.VerificationRecord

	err := r.db.GetContext(
		ctx,
		&record,
		"SELECT * FROM verifications WHERE verification_id = $1",
		verificationID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.VerificationRecord{}, entity.ErrVerificationNotFound
	} else if err != nil {
		return entity.VerificationRecord{}, fmt.Errorf("could not get verification: %w", err)
	}

	return record, nil
}

// MarkRejected finalizes a failed attempt. The record stays retryable: a
// later Verify call on the same ID starts over from the stored metadata.
// VERIFIED is terminal. A record that already won its redemption must stay
// VERIFIED no matter what later attempts against the same ID report, or a
// USED ticket would be left without its verified record.
func (r *PostgresRepository) MarkRejected(ctx context.Context, verificationID string, reason string) error {
	_, err := r.db.ExecContext(
		ctx,
		`
		UPDATE verifications
		SET
			status = $2,
			metadata = metadata || jsonb_build_object('reject_reason', $3::text)
		WHERE verification_id = $1 AND status <> $4`,
		verificationID,
		entity.VerificationStatusRejected,
		reason,
		entity.VerificationStatusVerified,
	)
	if err != nil {
		return fmt.Errorf("could not mark verification rejected: %w", err)
	}

	return nil
}

// CountByAgentSince counts the attempts one agent made in the trailing
// window, regardless of outcome. Used for rate limiting.
func (r *PostgresRepository) CountByAgentSince(ctx context.Context, agent string, since time.Time) (int, error) {
	var count int

	err := r.db.GetContext(
		ctx,
		&count,
		"SELECT COUNT(*) FROM verifications WHERE verifying_agent = $1 AND created_at >= $2",
		agent,
		since,
	)
	if err != nil {
		return 0, fmt.Errorf("could not count verifications: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) FindByTicketID(ctx context.Context, ticketID string) ([]entity.VerificationRecord, error) {
	var records []entity.VerificationRecord

	err := r.db.SelectContext(
		ctx,
		&records,
		"SELECT * FROM verifications WHERE ticket_id = $1 ORDER BY created_at",
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("could not get verifications: %w", err)
	}

	return records, nil
}
