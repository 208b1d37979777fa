package entity

import "time"

// Attribute keys the ledger is known to carry on ticket assets. The claimed
// flag is a display-only mirror of the database status, never an input to
// the redemption decision.
const (
	AssetAttrEventID      = "event_id"
	AssetAttrTicketNumber = "ticket_number"
	AssetAttrClaimed      = "claimed"
	AssetAttrClaimedAt    = "claimed_at"
)

// AssetSnapshot is the ledger's view of an asset at the moment of the oracle
// read.
type AssetSnapshot struct {
	AssetID    string            `json:"asset_id"`
	Owner      string            `json:"owner"`
	IsFrozen   bool              `json:"is_frozen"`
	Attributes map[string]string `json:"attributes"`
}

// IsSoulbound reports whether the asset is permanently bound to its owner.
// Tickets whose asset is transferable are not valid credentials.
func (s AssetSnapshot) IsSoulbound() bool {
	return s.IsFrozen
}

// Attribute returns the value of an on-chain attribute, if present.
func (s AssetSnapshot) Attribute(key string) (string, bool) {
	v, ok := s.Attributes[key]
	return v, ok
}

// AssetMirror is the last snapshot persisted for fraud-deterrence display.
type AssetMirror struct {
	AssetID     string    `db:"asset_id"`
	TicketID    string    `db:"ticket_id"`
	Owner       string    `db:"owner"`
	IsFrozen    bool      `db:"is_frozen"`
	Attributes  Metadata  `db:"attributes"`
	RefreshedAt time.Time `db:"refreshed_at"`
}
