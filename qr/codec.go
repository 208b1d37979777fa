// Package qr implements the compact ticket payload embedded in gate QR
// codes: a "parchi:"-tagged, base64url-encoded JSON document with a
// truncated checksum for tamper evidence.
//
// The checksum covers the full asset identifier, which the payload itself
// only carries an 8-character prefix of. Decoding therefore never validates
// the checksum; that happens in a second stage once the directory lookup
// produced the full asset id.
package qr

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"parchi/entity"
)

const (
	// SchemeTag prefixes every encoded payload.
	SchemeTag = "parchi:"

	// SupportedVersion is the only payload version this codec accepts.
	SupportedVersion = 1

	// AssetPrefixLen is how many leading characters of the asset id travel
	// inside the payload. Enough for an indexed starts-with lookup, not
	// enough to recompute the checksum.
	AssetPrefixLen = 8

	checksumLen = 4
)

// Payload is the decoded wire structure. Immutable once constructed; issuer
// and verifier derive it identically for checksum comparison.
type Payload struct {
	Version      int    `json:"v"`
	EventID      string `json:"e"`
	TicketNumber int    `json:"t"`
	AssetPrefix  string `json:"a"`
	IssuedAt     int64  `json:"ts"`
	Checksum     string `json:"c"`
}

// IssuedTime returns the issuance instant carried by the payload.
func (p Payload) IssuedTime() time.Time {
	return time.Unix(p.IssuedAt, 0)
}

// Encode builds the scannable string for a ticket. Deterministic for
// identical inputs.
func Encode(eventID string, ticketNumber int, fullAssetID string, issuedAt time.Time) (string, error) {
	if eventID == "" {
		return "", fmt.Errorf("event id is empty: %w", entity.ErrMalformedPayload)
	}
	if ticketNumber <= 0 {
		return "", fmt.Errorf("ticket number must be positive: %w", entity.ErrMalformedPayload)
	}
	if len(fullAssetID) < AssetPrefixLen {
		return "", fmt.Errorf("asset id shorter than %d characters: %w", AssetPrefixLen, entity.ErrMalformedPayload)
	}

	payload := Payload{
		Version:      SupportedVersion,
		EventID:      eventID,
		TicketNumber: ticketNumber,
		AssetPrefix:  fullAssetID[:AssetPrefixLen],
		IssuedAt:     issuedAt.Unix(),
		Checksum:     Checksum(eventID, ticketNumber, fullAssetID, issuedAt.Unix()),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("could not marshal payload: %w", err)
	}

	return SchemeTag + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a scanned string into a Payload. Only structural validity
// is checked here; checksum validation requires the full asset id and is a
// separate stage (VerifyChecksum).
func Decode(raw string) (Payload, error) {
	body, ok := strings.CutPrefix(raw, SchemeTag)
	if !ok {
		return Payload{}, fmt.Errorf("missing %q scheme tag: %w", SchemeTag, entity.ErrMalformedPayload)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, fmt.Errorf("invalid base64 body: %w", entity.ErrMalformedPayload)
	}

	var payload Payload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return Payload{}, fmt.Errorf("invalid payload document: %w", entity.ErrMalformedPayload)
	}

	if payload.Version != SupportedVersion {
		return Payload{}, fmt.Errorf("version %d: %w", payload.Version, entity.ErrUnsupportedVersion)
	}

	switch {
	case payload.EventID == "":
		return Payload{}, fmt.Errorf("missing event id: %w", entity.ErrMalformedPayload)
	case payload.TicketNumber <= 0:
		return Payload{}, fmt.Errorf("ticket number must be positive: %w", entity.ErrMalformedPayload)
	case len(payload.AssetPrefix) != AssetPrefixLen:
		return Payload{}, fmt.Errorf("asset prefix must be %d characters: %w", AssetPrefixLen, entity.ErrMalformedPayload)
	case payload.IssuedAt <= 0:
		return Payload{}, fmt.Errorf("issued-at must be positive: %w", entity.ErrMalformedPayload)
	case len(payload.Checksum) != checksumLen:
		return Payload{}, fmt.Errorf("checksum must be %d characters: %w", checksumLen, entity.ErrMalformedPayload)
	}

	return payload, nil
}

// Checksum derives the truncated integrity hash. 4 hex characters is a
// deliberate QR-capacity tradeoff; brute-force resistance comes from the
// gate rate limiter, not from the hash width.
func Checksum(eventID string, ticketNumber int, fullAssetID string, issuedAtUnix int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%d", eventID, ticketNumber, fullAssetID, issuedAtUnix)))
	return hex.EncodeToString(sum[:])[:checksumLen]
}

// VerifyChecksum re-derives the checksum with the full asset id resolved
// from the directory and compares it to the payload's.
func VerifyChecksum(payload Payload, fullAssetID string) error {
	if !strings.HasPrefix(fullAssetID, payload.AssetPrefix) {
		return fmt.Errorf("asset %q does not start with payload prefix %q: %w",
			fullAssetID, payload.AssetPrefix, entity.ErrAssetPrefixMismatch)
	}

	expected := Checksum(payload.EventID, payload.TicketNumber, fullAssetID, payload.IssuedAt)
	if expected != payload.Checksum {
		return fmt.Errorf("expected %s, got %s: %w", expected, payload.Checksum, entity.ErrTamperDetected)
	}

	return nil
}

// ValidateFreshness rejects payloads older than maxAge. The default gate
// window is long (a ticket stays scannable until its event ends); the much
// shorter anti-screenshot window is the fraud guard's job.
func ValidateFreshness(payload Payload, maxAge time.Duration) error {
	age := time.Since(payload.IssuedTime())
	if age > maxAge {
		return fmt.Errorf("payload is %s old, max age %s: %w", age.Truncate(time.Second), maxAge, entity.ErrExpired)
	}
	return nil
}
