// Package verification implements the two-phase gate check: a read-only
// scan that resolves and vets the payload, then a verify that cross-checks
// the ledger and performs the atomic redemption.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"

	"parchi/entity"
	"parchi/metrics"
	"parchi/qr"
)

const (
	redeemMaxAttempts = 3
	redeemBackoff     = 100 * time.Millisecond
)

type TicketsRepository interface {
	FindByID(ctx context.Context, ticketID string) (entity.Ticket, error)
	FindByPayload(ctx context.Context, eventID string, ticketNumber int, assetPrefix string) (entity.Ticket, error)
	Redeem(ctx context.Context, redemption entity.Redemption) error
}

type VerificationsRepository interface {
	Create(ctx context.Context, record entity.VerificationRecord) error
	FindByID(ctx context.Context, verificationID string) (entity.VerificationRecord, error)
	MarkRejected(ctx context.Context, verificationID string, reason string) error
}

type AssetOracle interface {
	FetchAsset(ctx context.Context, assetID string) (entity.AssetSnapshot, error)
}

type Guard interface {
	CheckDuplicateScan(ctx context.Context, qrData string) error
	CheckFreshness(payload qr.Payload) error
	CheckAgentRateLimit(ctx context.Context, agent string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	// PayloadMaxAge bounds how old a payload's issued-at may be. This is the
	// ticket validity window, not the anti-screenshot one.
	PayloadMaxAge time.Duration

	// OracleTimeout bounds the ledger cross-check so a slow oracle cannot
	// stall the gate line.
	OracleTimeout time.Duration
}

type Service struct {
	tickets       TicketsRepository
	verifications VerificationsRepository
	oracle        AssetOracle
	guard         Guard
	eventBus      EventPublisher
	config        Config
}

func NewService(
	tickets TicketsRepository,
	verifications VerificationsRepository,
	oracle AssetOracle,
	guard Guard,
	eventBus EventPublisher,
	config Config,
) Service {
	if tickets == nil {
		panic("tickets repository is nil")
	}
	if verifications == nil {
		panic("verifications repository is nil")
	}
	if oracle == nil {
		panic("oracle is nil")
	}
	if guard == nil {
		panic("guard is nil")
	}
	if eventBus == nil {
		panic("event bus is nil")
	}
	if config.PayloadMaxAge <= 0 {
		config.PayloadMaxAge = 24 * time.Hour
	}
	if config.OracleTimeout <= 0 {
		config.OracleTimeout = 3 * time.Second
	}

	return Service{
		tickets:       tickets,
		verifications: verifications,
		oracle:        oracle,
		guard:         guard,
		eventBus:      eventBus,
		config:        config,
	}
}

type ScanRequest struct {
	QRData         string
	VerifyingAgent string
	GateID         string
}

type ScanResult struct {
	VerificationID string
	Ticket         entity.Ticket

	// ExpiresInSeconds is how long the scanned payload stays valid, i.e. how
	// much time the agent has to complete the verify phase.
	ExpiresInSeconds int
}

// Scan vets a raw payload and opens a PENDING verification record. It never
// touches ticket state: a scan can be repeated or abandoned freely.
func (s Service) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	result, err := s.scan(ctx, req)
	if err != nil {
		s.recordScanRejection(ctx, req, result, err)
		return ScanResult{}, err
	}

	metrics.ScansTotal.WithLabelValues("ACCEPTED").Inc()

	return result, nil
}

func (s Service) scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	if err := s.guard.CheckAgentRateLimit(ctx, req.VerifyingAgent); err != nil {
		return ScanResult{}, err
	}

	payload, err := qr.Decode(req.QRData)
	if err != nil {
		return ScanResult{}, err
	}

	if err := s.guard.CheckDuplicateScan(ctx, req.QRData); err != nil {
		return ScanResult{}, err
	}

	if err := qr.ValidateFreshness(payload, s.config.PayloadMaxAge); err != nil {
		return ScanResult{}, err
	}

	if err := s.guard.CheckFreshness(payload); err != nil {
		return ScanResult{}, err
	}

	ticket, err := s.tickets.FindByPayload(ctx, payload.EventID, payload.TicketNumber, payload.AssetPrefix)
	if err != nil {
		return ScanResult{}, err
	}

	switch ticket.Status {
	case entity.TicketStatusActive:
		// proceed
	case entity.TicketStatusUsed:
		return ScanResult{Ticket: ticket}, entity.AlreadyRedeemedError{UsedAt: ticket.UsedAt}
	default:
		// cancelled and refunded tickets are indistinguishable from unknown
		// ones on purpose: the scanner learns nothing about why
		return ScanResult{Ticket: ticket}, entity.ErrTicketNotFound
	}

	if ticket.AssetID == "" {
		// mint never confirmed, the payload cannot be checksummed
		return ScanResult{Ticket: ticket}, entity.ErrAssetNotFound
	}

	if err := qr.VerifyChecksum(payload, ticket.AssetID); err != nil {
		return ScanResult{Ticket: ticket}, err
	}

	record := entity.VerificationRecord{
		VerificationID: uuid.NewString(),
		EventID:        ticket.EventID,
		TicketID:       ticket.TicketID,
		VerifyingAgent: req.VerifyingAgent,
		Status:         entity.VerificationStatusPending,
		Location:       req.GateID,
		Metadata: entity.Metadata{
			entity.MetaEventID:      ticket.EventID,
			entity.MetaTicketNumber: fmt.Sprint(ticket.TicketNumber),
			entity.MetaQRData:       req.QRData,
			entity.MetaStaffID:      req.VerifyingAgent,
			entity.MetaGateID:       req.GateID,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.verifications.Create(ctx, record); err != nil {
		return ScanResult{Ticket: ticket}, err
	}

	err = s.eventBus.Publish(ctx, entity.TicketScanned{
		Header:         entity.NewEventHeader(),
		TicketID:       ticket.TicketID,
		EventID:        ticket.EventID,
		VerificationID: record.VerificationID,
		VerifyingAgent: req.VerifyingAgent,
		GateID:         req.GateID,
	})
	if err != nil {
		log.FromContext(ctx).
			WithField("error", err).
			Error("Could not publish TicketScanned event")
	}

	return ScanResult{
		VerificationID:   record.VerificationID,
		Ticket:           ticket,
		ExpiresInSeconds: s.payloadExpiresIn(payload),
	}, nil
}

func (s Service) payloadExpiresIn(payload qr.Payload) int {
	remaining := s.config.PayloadMaxAge - time.Since(payload.IssuedTime())
	if remaining < 0 {
		return 0
	}
	return int(remaining.Seconds())
}

type VerifyRequest struct {
	// VerificationID resumes a scan. Verifying the same ID twice is
	// idempotent.
	VerificationID string

	// TicketID is the direct path for agents that skipped the scan phase. A
	// fresh verification ID is minted, so this path is not idempotent.
	TicketID string

	VerifyingAgent string
	GateID         string
}

type VerifyResult struct {
	VerificationID string
	TicketID       string
	EventID        string
	UsedAt         time.Time

	// AlreadyVerified is set when this verification ID had already been
	// completed and the call was a replay.
	AlreadyVerified bool
}

// Verify cross-checks the ledger and redeems the ticket. At most one Verify
// ever succeeds per ticket no matter how many agents race.
func (s Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	started := time.Now()
	defer func() {
		metrics.VerificationDuration.Observe(time.Since(started).Seconds())
	}()

	result, err := s.verify(ctx, req)
	if err != nil {
		s.recordVerifyRejection(ctx, req, result, err)
		return VerifyResult{}, err
	}

	metrics.VerificationsTotal.WithLabelValues("ACCEPTED").Inc()

	return result, nil
}

func (s Service) verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if err := s.guard.CheckAgentRateLimit(ctx, req.VerifyingAgent); err != nil {
		return VerifyResult{}, err
	}

	verificationID := req.VerificationID
	ticketID := req.TicketID

	if verificationID != "" {
		record, err := s.verifications.FindByID(ctx, verificationID)
		if err != nil {
			return VerifyResult{}, err
		}

		if ticketID != "" && ticketID != record.TicketID {
			return VerifyResult{VerificationID: verificationID}, entity.ErrVerificationTicketMismatch
		}
		ticketID = record.TicketID

		if record.Status == entity.VerificationStatusVerified {
			// replayed confirmation, report the original outcome
			result := VerifyResult{
				VerificationID:  verificationID,
				TicketID:        ticketID,
				AlreadyVerified: true,
			}
			if record.VerifiedAt != nil {
				result.UsedAt = *record.VerifiedAt
			}
			return result, nil
		}
		// PENDING proceeds; REJECTED records stay retryable
	} else {
		verificationID = uuid.NewString()
	}

	if ticketID == "" {
		return VerifyResult{}, fmt.Errorf("neither verification nor ticket id given: %w", entity.ErrTicketNotFound)
	}

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return VerifyResult{VerificationID: verificationID}, err
	}

	result := VerifyResult{VerificationID: verificationID, TicketID: ticket.TicketID, EventID: ticket.EventID}

	switch ticket.Status {
	case entity.TicketStatusActive:
		// proceed
	case entity.TicketStatusUsed:
		return result, entity.AlreadyRedeemedError{UsedAt: ticket.UsedAt}
	default:
		return result, entity.ErrTicketNotFound
	}

	if ticket.AssetID == "" {
		return result, entity.ErrAssetNotFound
	}

	if err := s.crossCheckAsset(ctx, ticket); err != nil {
		return result, err
	}

	usedAt := time.Now().UTC()
	err = s.redeemWithRetry(ctx, entity.Redemption{
		TicketID:       ticket.TicketID,
		VerificationID: verificationID,
		VerifyingAgent: req.VerifyingAgent,
		GateID:         req.GateID,
		UsedAt:         usedAt,
	})
	if err != nil {
		return result, err
	}

	result.UsedAt = usedAt

	return result, nil
}

// crossCheckAsset corroborates the ticket against the ledger. The oracle
// being down degrades to a database-only decision; the asset being missing
// or transferable is a hard rejection.
func (s Service) crossCheckAsset(ctx context.Context, ticket entity.Ticket) error {
	oracleCtx, cancel := context.WithTimeout(ctx, s.config.OracleTimeout)
	defer cancel()

	snapshot, err := s.oracle.FetchAsset(oracleCtx, ticket.AssetID)
	if errors.Is(err, entity.ErrAssetNotFound) {
		return entity.ErrAssetNotFound
	}
	if err != nil {
		metrics.OracleLookupsFailed.Inc()
		log.FromContext(ctx).
			WithField("asset_id", ticket.AssetID).
			WithField("error", err).
			Warn("Asset oracle unavailable, proceeding on database state only")
		return nil
	}

	if !snapshot.IsSoulbound() {
		return entity.ErrNotSoulbound
	}

	return nil
}

// redeemWithRetry retries Redeem only for failures marked retry-safe, i.e.
// the transaction provably never began. Anything past that point is never
// retried blindly.
func (s Service) redeemWithRetry(ctx context.Context, redemption entity.Redemption) error {
	var err error
	for attempt := 1; attempt <= redeemMaxAttempts; attempt++ {
		err = s.tickets.Redeem(ctx, redemption)
		if err == nil || !errors.Is(err, entity.ErrRetrySafe) {
			return err
		}

		log.FromContext(ctx).
			WithField("ticket_id", redemption.TicketID).
			WithField("attempt", attempt).
			Warn("Retrying redemption after safe storage failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * redeemBackoff):
		}
	}
	return err
}

func (s Service) recordScanRejection(ctx context.Context, req ScanRequest, result ScanResult, cause error) {
	code := entity.RejectionCode(cause)
	metrics.ScansTotal.WithLabelValues(code).Inc()

	err := s.eventBus.Publish(ctx, entity.VerificationRejected{
		Header:         entity.NewEventHeader(),
		TicketID:       result.Ticket.TicketID,
		EventID:        result.Ticket.EventID,
		VerifyingAgent: req.VerifyingAgent,
		GateID:         req.GateID,
		Reason:         code,
		RawPayload:     req.QRData,
	})
	if err != nil {
		log.FromContext(ctx).
			WithField("error", err).
			Error("Could not publish VerificationRejected event")
	}
}

func (s Service) recordVerifyRejection(ctx context.Context, req VerifyRequest, result VerifyResult, cause error) {
	code := entity.RejectionCode(cause)
	metrics.VerificationsTotal.WithLabelValues(code).Inc()

	if result.VerificationID != "" && req.VerificationID != "" {
		if err := s.verifications.MarkRejected(ctx, result.VerificationID, code); err != nil {
			log.FromContext(ctx).
				WithField("verification_id", result.VerificationID).
				WithField("error", err).
				Error("Could not mark verification rejected")
		}
	}

	err := s.eventBus.Publish(ctx, entity.VerificationRejected{
		Header:         entity.NewEventHeader(),
		TicketID:       result.TicketID,
		EventID:        result.EventID,
		VerificationID: result.VerificationID,
		VerifyingAgent: req.VerifyingAgent,
		GateID:         req.GateID,
		Reason:         code,
	})
	if err != nil {
		log.FromContext(ctx).
			WithField("error", err).
			Error("Could not publish VerificationRejected event")
	}
}
