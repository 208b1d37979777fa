package entity

// RefreshAssetMirror asks for the on-chain state of an asset to be re-read
// and persisted to the display mirror. Sent after a redemption so the
// mirror eventually reflects the claimed state.
type RefreshAssetMirror struct {
	Header   EventHeader `json:"header"`
	TicketID string      `json:"ticket_id"`
	AssetID  string      `json:"asset_id"`
}
