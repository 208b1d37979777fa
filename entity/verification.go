package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	VerificationStatusPending  = "PENDING"
	VerificationStatusVerified = "VERIFIED"
	VerificationStatusRejected = "REJECTED"
)

// Recognized metadata keys. The bag stays extensible but these are the ones
// readers can rely on.
const (
	MetaEventID      = "event_id"
	MetaTicketNumber = "ticket_number"
	MetaQRData       = "qr_data"
	MetaStaffID      = "staff_id"
	MetaGateID       = "gate_id"
	MetaClaimed      = "claimed"
	MetaClaimedAt    = "claimed_at"
	MetaRejectReason = "reject_reason"
	MetaOracleNote   = "oracle_note"
)

// VerificationRecord is the audit entry of one gate-check attempt. A ticket
// may accumulate many of these, but at most one ever reaches VERIFIED.
type VerificationRecord struct {
	VerificationID string     `json:"verification_id" db:"verification_id"`
	EventID        string     `json:"event_id" db:"event_id"`
	TicketID       string     `json:"ticket_id" db:"ticket_id"`
	VerifyingAgent string     `json:"verifying_agent" db:"verifying_agent"`
	Status         string     `json:"status" db:"status"`
	Location       string     `json:"location" db:"location"`
	Metadata       Metadata   `json:"metadata" db:"metadata"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	VerifiedAt     *time.Time `json:"verified_at" db:"verified_at"`
}

// Metadata is the free-form diagnostic payload of a verification record,
// stored as JSONB.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case nil:
		*m = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
}
