package verifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbutils "parchi/db"
	"parchi/entity"
)

func pendingRecord(agent string) entity.VerificationRecord {
	return entity.VerificationRecord{
		VerificationID: uuid.NewString(),
		EventID:        uuid.NewString(),
		TicketID:       uuid.NewString(),
		VerifyingAgent: agent,
		Status:         entity.VerificationStatusPending,
		Location:       "gate-a",
		Metadata: entity.Metadata{
			entity.MetaGateID: "gate-a",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestVerificationsRepository_Create_idempotency(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	record := pendingRecord("staff-1")

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Create(ctx, record))

		stored, err := repo.FindByID(ctx, record.VerificationID)
		require.NoError(t, err)
		assert.Equal(t, entity.VerificationStatusPending, stored.Status)
		assert.Equal(t, record.TicketID, stored.TicketID)
		assert.Equal(t, "gate-a", stored.Metadata[entity.MetaGateID])
	}
}

func TestVerificationsRepository_FindByID_not_found(t *testing.T) {
	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrVerificationNotFound)
}

func TestVerificationsRepository_MarkRejected(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	record := pendingRecord("staff-1")
	require.NoError(t, repo.Create(ctx, record))

	require.NoError(t, repo.MarkRejected(ctx, record.VerificationID, "TAMPER_DETECTED"))

	stored, err := repo.FindByID(ctx, record.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationStatusRejected, stored.Status)
	assert.Equal(t, "TAMPER_DETECTED", stored.Metadata[entity.MetaRejectReason])
	// original metadata survives the merge
	assert.Equal(t, "gate-a", stored.Metadata[entity.MetaGateID])
}

func TestVerificationsRepository_MarkRejected_verified_is_terminal(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	record := pendingRecord("staff-1")
	require.NoError(t, repo.Create(ctx, record))

	_, err := db.ExecContext(ctx,
		"UPDATE verifications SET status = $2, verified_at = NOW() WHERE verification_id = $1",
		record.VerificationID, entity.VerificationStatusVerified)
	require.NoError(t, err)

	require.NoError(t, repo.MarkRejected(ctx, record.VerificationID, "VERIFICATION_TICKET_MISMATCH"))

	stored, err := repo.FindByID(ctx, record.VerificationID)
	require.NoError(t, err)
	assert.Equal(t, entity.VerificationStatusVerified, stored.Status)
	assert.NotContains(t, stored.Metadata, entity.MetaRejectReason)
}

func TestVerificationsRepository_CountByAgentSince(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	agent := "staff-" + uuid.NewString()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, pendingRecord(agent)))
	}

	count, err := repo.CountByAgentSince(ctx, agent, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = repo.CountByAgentSince(ctx, agent, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
