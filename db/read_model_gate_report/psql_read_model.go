package read_model_gate_report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"parchi/entity"
)

// GateReportReadModel keeps a per-event JSONB document with redemption and
// rejection counts broken down by gate. It is updated from the event stream,
// so counts may trail the write side by a moment.
type GateReportReadModel struct {
	db *sqlx.DB
}

func NewGateReportReadModel(db *sqlx.DB) GateReportReadModel {
	if db == nil {
		panic("db is nil")
	}

	return GateReportReadModel{db: db}
}

func (r GateReportReadModel) GateReport(ctx context.Context, eventID string) (entity.GateReport, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `
		SELECT payload
		FROM read_model_gate_report
		WHERE event_id = $1
		`, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.GateReport{
			EventID: eventID,
			Gates:   map[string]entity.GateActivity{},
		}, nil
	} else if err != nil {
		return entity.GateReport{}, fmt.Errorf("could not get gate report: %w", err)
	}

	return r.unmarshalReadModelFromDB(payload)
}

func (r GateReportReadModel) OnTicketRedeemed(ctx context.Context, event *entity.TicketRedeemed) error {
	return r.updateReadModel(
		ctx,
		event.EventID,
		func(rm entity.GateReport) (entity.GateReport, error) {
			rm.Redeemed++

			gate := rm.Gates[event.GateID]
			gate.Redeemed++
			rm.Gates[event.GateID] = gate

			if event.UsedAt.After(rm.LastActivityAt) {
				rm.LastActivityAt = event.UsedAt
			}

			return rm, nil
		},
	)
}

func (r GateReportReadModel) OnVerificationRejected(ctx context.Context, event *entity.VerificationRejected) error {
	if event.EventID == "" {
		// payload never resolved to a ticket, there is no event to count it under
		return nil
	}

	return r.updateReadModel(
		ctx,
		event.EventID,
		func(rm entity.GateReport) (entity.GateReport, error) {
			rm.Rejected++

			gate := rm.Gates[event.GateID]
			gate.Rejected++
			rm.Gates[event.GateID] = gate

			if event.Header.PublishedAt.After(rm.LastActivityAt) {
				rm.LastActivityAt = event.Header.PublishedAt
			}

			return rm, nil
		},
	)
}

func (r GateReportReadModel) updateReadModel(
	ctx context.Context,
	eventID string,
	updateFunc func(rm entity.GateReport) (entity.GateReport, error),
) error {
	return updateInTx(
		ctx,
		r.db,
		sql.LevelRepeatableRead,
		func(ctx context.Context, tx *sqlx.Tx) error {
			rm, err := r.findReadModelByEventID(ctx, eventID, tx)
			if errors.Is(err, sql.ErrNoRows) {
				rm = entity.GateReport{
					EventID: eventID,
					Gates:   map[string]entity.GateActivity{},
				}
			} else if err != nil {
				return fmt.Errorf("could not find gate report: %w", err)
			}

			updatedRm, err := updateFunc(rm)
			if err != nil {
				return err
			}

			payload, err := json.Marshal(updatedRm)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO
					read_model_gate_report (payload, event_id)
				VALUES
					($1, $2)
				ON CONFLICT (event_id) DO UPDATE SET payload = excluded.payload;
				`, payload, eventID)
			if err != nil {
				return fmt.Errorf("could not update gate report: %w", err)
			}

			return nil
		},
	)
}

func (r GateReportReadModel) findReadModelByEventID(
	ctx context.Context,
	eventID string,
	tx *sqlx.Tx,
) (entity.GateReport, error) {
	var payload []byte

	err := tx.QueryRowContext(
		ctx,
		"SELECT payload FROM read_model_gate_report WHERE event_id = $1 FOR UPDATE",
		eventID,
	).Scan(&payload)
	if err != nil {
		return entity.GateReport{}, err
	}

	return r.unmarshalReadModelFromDB(payload)
}

func (r GateReportReadModel) unmarshalReadModelFromDB(payload []byte) (entity.GateReport, error) {
	var dbReadModel entity.GateReport
	if err := json.Unmarshal(payload, &dbReadModel); err != nil {
		return entity.GateReport{}, err
	}

	if dbReadModel.Gates == nil {
		dbReadModel.Gates = map[string]entity.GateActivity{}
	}

	return dbReadModel, nil
}

func updateInTx(
	ctx context.Context,
	db *sqlx.DB,
	isolation sql.IsolationLevel,
	fn func(ctx context.Context, tx *sqlx.Tx) error,
) (err error) {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = errors.Join(err, rollbackErr)
			}
			return
		}

		err = tx.Commit()
	}()

	return fn(ctx, tx)
}
