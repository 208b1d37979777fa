package tickets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbutils "parchi/db"
	"parchi/entity"
)

func sampleTicket() entity.Ticket {
	return entity.Ticket{
		TicketID:       uuid.NewString(),
		EventID:        uuid.NewString(),
		TicketNumber:   142,
		HolderIdentity: "holder-1",
		AssetID:        "0xabcdef0123456789",
		PurchasePrice:  decimal.RequireFromString("30.00"),
		Status:         entity.TicketStatusActive,
		PurchasedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestTicketsRepository_Store_idempotency(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	ticketToAdd := sampleTicket()

	for i := 0; i < 2; i++ {
		err := repo.Store(ctx, ticketToAdd)
		require.NoError(t, err)

		stored, err := repo.FindByID(ctx, ticketToAdd.TicketID)
		require.NoError(t, err)
		assert.Equal(t, ticketToAdd.EventID, stored.EventID)
		assert.Equal(t, entity.TicketStatusActive, stored.Status)
	}
}

func TestTicketsRepository_FindByID_not_found(t *testing.T) {
	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrTicketNotFound)
}

func TestTicketsRepository_FindByPayload(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	ticket := sampleTicket()
	require.NoError(t, repo.Store(ctx, ticket))

	t.Run("by event and number", func(t *testing.T) {
		found, err := repo.FindByPayload(ctx, ticket.EventID, ticket.TicketNumber, "")
		require.NoError(t, err)
		assert.Equal(t, ticket.TicketID, found.TicketID)
	})

	t.Run("falls back to asset prefix", func(t *testing.T) {
		found, err := repo.FindByPayload(ctx, ticket.EventID, 99999, ticket.AssetID[:8])
		require.NoError(t, err)
		assert.Equal(t, ticket.TicketID, found.TicketID)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := repo.FindByPayload(ctx, ticket.EventID, 99999, "0x000000")
		assert.ErrorIs(t, err, entity.ErrTicketNotFound)
	})
}

func TestTicketsRepository_Redeem(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	ticket := sampleTicket()
	require.NoError(t, repo.Store(ctx, ticket))

	usedAt := time.Now().UTC().Truncate(time.Millisecond)
	err := repo.Redeem(ctx, entity.Redemption{
		TicketID:       ticket.TicketID,
		VerificationID: uuid.NewString(),
		VerifyingAgent: "staff-1",
		GateID:         "gate-a",
		UsedAt:         usedAt,
	})
	require.NoError(t, err)

	redeemed, err := repo.FindByID(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, entity.TicketStatusUsed, redeemed.Status)
	require.NotNil(t, redeemed.UsedAt)
	assert.Equal(t, usedAt, redeemed.UsedAt.UTC())

	// a second attempt reports when the ticket was first used
	err = repo.Redeem(ctx, entity.Redemption{
		TicketID:       ticket.TicketID,
		VerificationID: uuid.NewString(),
		VerifyingAgent: "staff-2",
		GateID:         "gate-b",
		UsedAt:         time.Now().UTC(),
	})
	var alreadyRedeemed entity.AlreadyRedeemedError
	require.ErrorAs(t, err, &alreadyRedeemed)
	assert.ErrorIs(t, err, entity.ErrAlreadyRedeemed)
	require.NotNil(t, alreadyRedeemed.UsedAt)
	assert.Equal(t, usedAt, alreadyRedeemed.UsedAt.UTC())
}

func TestTicketsRepository_Redeem_unknown_ticket(t *testing.T) {
	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	err := repo.Redeem(context.Background(), entity.Redemption{
		TicketID:       uuid.NewString(),
		VerificationID: uuid.NewString(),
		UsedAt:         time.Now().UTC(),
	})
	assert.ErrorIs(t, err, entity.ErrTicketNotFound)
}

// Fifty agents race on the same ticket. Exactly one wins, everyone else gets
// AlreadyRedeemed, and the ticket ends up USED with one VERIFIED record.
func TestTicketsRepository_Redeem_concurrent(t *testing.T) {
	ctx := context.Background()

	db := dbutils.GetDb(t)
	repo := NewPostgresRepository(db)

	ticket := sampleTicket()
	require.NoError(t, repo.Store(ctx, ticket))

	const workers = 50

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Redeem(ctx, entity.Redemption{
				TicketID:       ticket.TicketID,
				VerificationID: uuid.NewString(),
				VerifyingAgent: "staff-1",
				GateID:         "gate-a",
				UsedAt:         time.Now().UTC(),
			})
		}()
	}

	wg.Wait()
	close(results)

	var succeeded, alreadyRedeemed int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, entity.ErrAlreadyRedeemed)
			alreadyRedeemed++
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, alreadyRedeemed)

	redeemed, err := repo.FindByID(ctx, ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, entity.TicketStatusUsed, redeemed.Status)

	var verified int
	err = db.GetContext(ctx, &verified,
		"SELECT COUNT(*) FROM verifications WHERE ticket_id = $1 AND status = $2",
		ticket.TicketID, entity.VerificationStatusVerified)
	require.NoError(t, err)
	assert.Equal(t, 1, verified)
}
