package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"parchi/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return PostgresRepository{db: db}
}

// StoreEvent appends a domain event to the audit trail. Idempotent by event
// ID so redelivered messages do not duplicate entries.
func (r PostgresRepository) StoreEvent(ctx context.Context, event entity.AuditEvent) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO audit_events
			(event_id, published_at, event_name, event_payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (event_id) DO NOTHING;
		`,
		event.ID,
		event.PublishedAt,
		event.Name,
		event.Payload,
	)
	if err != nil {
		return fmt.Errorf("could not store %s event in audit trail: %w", event.ID, err)
	}

	return nil
}

func (r PostgresRepository) FindAll(ctx context.Context) ([]entity.AuditEvent, error) {
	var events []entity.AuditEvent

	err := r.db.SelectContext(
		ctx,
		&events,
		"SELECT event_id, published_at, event_name, event_payload FROM audit_events ORDER BY published_at",
	)
	if err != nil {
		return nil, fmt.Errorf("could not get audit events: %w", err)
	}

	return events, nil
}
