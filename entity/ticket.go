package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TicketStatusActive    = "ACTIVE"
	TicketStatusUsed      = "USED"
	TicketStatusCancelled = "CANCELLED"
	TicketStatusRefunded  = "REFUNDED"
)

// Ticket is one issued, non-transferable entry credential. The row is the
// source of truth for redemption; the on-chain asset is only a mirror.
type Ticket struct {
	TicketID       string          `json:"ticket_id" db:"ticket_id"`
	EventID        string          `json:"event_id" db:"event_id"`
	TicketNumber   int             `json:"ticket_number" db:"ticket_number"`
	HolderIdentity string          `json:"holder_identity" db:"holder_identity"`
	AssetID        string          `json:"asset_id" db:"asset_id"` // empty until the mint is confirmed
	PurchasePrice  decimal.Decimal `json:"purchase_price" db:"purchase_price"`
	Status         string          `json:"status" db:"status"`
	QRData         string          `json:"qr_data" db:"qr_data"`
	PurchasedAt    time.Time       `json:"purchased_at" db:"purchased_at"`
	UsedAt         *time.Time      `json:"used_at" db:"used_at"`
}

// Redemption carries everything the atomic ACTIVE->USED transition needs:
// the conditional ticket update, the terminal verification record, and the
// event that goes out through the outbox, all in one transaction.
type Redemption struct {
	TicketID       string
	VerificationID string
	VerifyingAgent string
	GateID         string
	UsedAt         time.Time
	Metadata       Metadata
}
