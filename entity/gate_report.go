package entity

import "time"

// GateReport is the per-event read model served to gate supervisors.
type GateReport struct {
	EventID        string                  `json:"event_id"`
	Redeemed       int                     `json:"redeemed"`
	Rejected       int                     `json:"rejected"`
	Gates          map[string]GateActivity `json:"gates"`
	LastActivityAt time.Time               `json:"last_activity_at"`
}

type GateActivity struct {
	Redeemed int `json:"redeemed"`
	Rejected int `json:"rejected"`
}
