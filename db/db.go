package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var schema = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id UUID PRIMARY KEY,
	event_id TEXT NOT NULL,
	ticket_number BIGINT NOT NULL,
	holder_identity TEXT NOT NULL DEFAULT '',
	asset_id TEXT NOT NULL DEFAULT '',
	purchase_price NUMERIC(14, 2) NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	qr_data TEXT NOT NULL DEFAULT '',
	purchased_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	used_at TIMESTAMPTZ,
	UNIQUE (event_id, ticket_number)
);

-- the payload's 8-char asset prefix is resolved with an indexed starts-with
CREATE INDEX IF NOT EXISTS tickets_event_asset_idx
	ON tickets (event_id, asset_id text_pattern_ops);

CREATE TABLE IF NOT EXISTS verifications (
	verification_id UUID PRIMARY KEY,
	event_id TEXT NOT NULL DEFAULT '',
	ticket_id UUID NOT NULL,
	verifying_agent TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'PENDING',
	location TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	verified_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS verifications_agent_created_idx
	ON verifications (verifying_agent, created_at);

CREATE INDEX IF NOT EXISTS verifications_ticket_idx
	ON verifications (ticket_id);

CREATE TABLE IF NOT EXISTS asset_mirror (
	asset_id TEXT PRIMARY KEY,
	ticket_id UUID NOT NULL,
	owner TEXT NOT NULL DEFAULT '',
	is_frozen BOOLEAN NOT NULL DEFAULT FALSE,
	attributes JSONB NOT NULL DEFAULT '{}',
	refreshed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_events (
	event_id UUID PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL,
	event_name TEXT NOT NULL,
	event_payload JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS read_model_gate_report (
	event_id TEXT PRIMARY KEY,
	payload JSONB NOT NULL
);
`

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	return nil
}

// ApplyPoolLimits bounds the connection pool so a saturated database surfaces
// as a fast storage error at the gate instead of an unbounded pile-up of
// waiting verifications.
func ApplyPoolLimits(db *sqlx.DB, maxOpenConns int) {
	if maxOpenConns <= 0 {
		return
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)
}
