package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedPayload           = errors.New("malformed payload")
	ErrUnsupportedVersion         = errors.New("unsupported payload version")
	ErrExpired                    = errors.New("payload expired")
	ErrTamperDetected             = errors.New("payload checksum mismatch")
	ErrAssetPrefixMismatch        = errors.New("asset prefix mismatch")
	ErrTicketNotFound             = errors.New("ticket not found")
	ErrVerificationNotFound       = errors.New("verification not found")
	ErrVerificationTicketMismatch = errors.New("verification references a different ticket")
	ErrAlreadyRedeemed            = errors.New("ticket already redeemed")
	ErrAssetNotFound              = errors.New("asset not found on ledger")
	ErrNotSoulbound               = errors.New("asset is not soulbound")
	ErrOracleUnavailable          = errors.New("asset oracle unavailable")
	ErrStorageUnavailable         = errors.New("storage unavailable")
	ErrRateLimited                = errors.New("agent rate limited")
	ErrDuplicateScan              = errors.New("duplicate scan within window")

	// ErrRetrySafe marks a storage failure that provably happened before the
	// write was sent, so retrying cannot double-apply it.
	ErrRetrySafe = errors.New("retry safe")
)

// AlreadyRedeemedError carries when the winning redemption happened, so the
// losing scanner can show "already checked in at <time>".
type AlreadyRedeemedError struct {
	UsedAt *time.Time
}

func (e AlreadyRedeemedError) Error() string {
	if e.UsedAt == nil {
		return ErrAlreadyRedeemed.Error()
	}
	return fmt.Sprintf("ticket already redeemed at %s", e.UsedAt.Format(time.RFC3339))
}

func (e AlreadyRedeemedError) Is(target error) bool {
	return target == ErrAlreadyRedeemed
}

// RejectionCode maps a taxonomy error to its machine-readable code. Unknown
// errors map to INTERNAL.
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrMalformedPayload):
		return "MALFORMED_PAYLOAD"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UNSUPPORTED_VERSION"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrTamperDetected):
		return "TAMPER_DETECTED"
	case errors.Is(err, ErrAssetPrefixMismatch):
		return "ASSET_PREFIX_MISMATCH"
	case errors.Is(err, ErrTicketNotFound):
		return "TICKET_NOT_FOUND"
	case errors.Is(err, ErrVerificationNotFound):
		return "VERIFICATION_NOT_FOUND"
	case errors.Is(err, ErrVerificationTicketMismatch):
		return "VERIFICATION_TICKET_MISMATCH"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "ALREADY_REDEEMED"
	case errors.Is(err, ErrAssetNotFound):
		return "ASSET_NOT_FOUND"
	case errors.Is(err, ErrNotSoulbound):
		return "NOT_SOULBOUND"
	case errors.Is(err, ErrOracleUnavailable):
		return "ORACLE_UNAVAILABLE"
	case errors.Is(err, ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrDuplicateScan):
		return "DUPLICATE_SCAN_WINDOW"
	default:
		return "INTERNAL"
	}
}
