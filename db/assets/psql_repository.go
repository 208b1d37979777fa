package assets

import (
	"context"
	"database/sql"
	"errors"
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

// Upsert replaces the mirrored snapshot for an asset with a fresh one.
func (r PostgresRepository) Upsert(ctx context.Context, mirror entity.AssetMirror) error {
	_, err := r.db.NamedExecContext(
		ctx,
		`
		INSERT INTO
			asset_mirror (asset_id, ticket_id, owner, is_frozen, attributes, refreshed_at)
		VALUES
			(:asset_id, :ticket_id, :owner, :is_frozen, :attributes, :refreshed_at)
		ON CONFLICT (asset_id) DO UPDATE SET
			owner = excluded.owner,
			is_frozen = excluded.is_frozen,
			attributes = excluded.attributes,
			refreshed_at = excluded.refreshed_at`,
		mirror,
	)
	if err != nil {
		return fmt.Errorf("could not upsert asset mirror: %w", err)
	}

	return nil
}

func (r PostgresRepository) Get(ctx context.Context, assetID string) (entity.AssetMirror, error) {
	var mirror entity.AssetMirror

	err := r.db.GetContext(
		ctx,
		&mirror,
		"SELECT * FROM asset_mirror WHERE asset_id = $1",
		assetID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.AssetMirror{}, entity.ErrAssetNotFound
	} else if err != nil {
		return entity.AssetMirror{}, fmt.Errorf("could not get asset mirror: %w", err)
	}

	return mirror, nil
}
