package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"parchi/entity"
	"parchi/verification"
)

type gateScanRequest struct {
	QRData string `json:"qr_data" validate:"required"`
	Agent  string `json:"agent"`
	GateID string `json:"gate_id"`
}

type gateScanResponse struct {
	VerificationID   string `json:"verification_id"`
	TicketID         string `json:"ticket_id"`
	EventID          string `json:"event_id"`
	HolderIdentity   string `json:"holder_identity"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
}

type gateVerifyRequest struct {
	VerificationID string `json:"verification_id"`
	TicketID       string `json:"ticket_id"`
	Agent          string `json:"agent"`
	GateID         string `json:"gate_id"`
}

type gateVerifyResponse struct {
	VerificationID  string    `json:"verification_id"`
	TicketID        string    `json:"ticket_id"`
	UsedAt          time.Time `json:"used_at"`
	AlreadyVerified bool      `json:"already_verified,omitempty"`
}

type rejectionResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s Server) PostGateScan(c echo.Context) error {
	var request gateScanRequest
	if err := c.Bind(&request); err != nil {
		return err
	}
	if err := c.Validate(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.verifier.Scan(c.Request().Context(), verification.ScanRequest{
		QRData:         request.QRData,
		VerifyingAgent: agentFromContext(c, request.Agent),
		GateID:         request.GateID,
	})
	if err != nil {
		return rejectionToHTTP(c, err)
	}

	return c.JSON(http.StatusOK, gateScanResponse{
		VerificationID:   result.VerificationID,
		TicketID:         result.Ticket.TicketID,
		EventID:          result.Ticket.EventID,
		HolderIdentity:   result.Ticket.HolderIdentity,
		ExpiresInSeconds: result.ExpiresInSeconds,
	})
}

func (s Server) PostGateVerify(c echo.Context) error {
	var request gateVerifyRequest
	if err := c.Bind(&request); err != nil {
		return err
	}
	if request.VerificationID == "" && request.TicketID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "verification_id or ticket_id is required")
	}

	result, err := s.verifier.Verify(c.Request().Context(), verification.VerifyRequest{
		VerificationID: request.VerificationID,
		TicketID:       request.TicketID,
		VerifyingAgent: agentFromContext(c, request.Agent),
		GateID:         request.GateID,
	})
	if err != nil {
		return rejectionToHTTP(c, err)
	}

	return c.JSON(http.StatusOK, gateVerifyResponse{
		VerificationID:  result.VerificationID,
		TicketID:        result.TicketID,
		UsedAt:          result.UsedAt,
		AlreadyVerified: result.AlreadyVerified,
	})
}

func (s Server) GetGateReport(c echo.Context) error {
	report, err := s.gateReportModel.GateReport(c.Request().Context(), c.Param("event_id"))
	if err != nil {
		return fmt.Errorf("could not get gate report: %w", err)
	}

	return c.JSON(http.StatusOK, report)
}

// rejectionToHTTP translates the error taxonomy to a gate-friendly response.
// The scanner shows Message verbatim, so it stays short and human.
func rejectionToHTTP(c echo.Context, err error) error {
	code := entity.RejectionCode(err)

	message := err.Error()
	var alreadyRedeemed entity.AlreadyRedeemedError
	if errors.As(err, &alreadyRedeemed) && alreadyRedeemed.UsedAt != nil {
		message = fmt.Sprintf("Already checked in at %s", alreadyRedeemed.UsedAt.Format(time.RFC3339))
	}

	return c.JSON(statusForCode(code), rejectionResponse{
		Code:    code,
		Message: message,
	})
}

func statusForCode(code string) int {
	switch code {
	case "MALFORMED_PAYLOAD", "UNSUPPORTED_VERSION":
		return http.StatusBadRequest
	case "EXPIRED":
		return http.StatusGone
	case "TICKET_NOT_FOUND", "VERIFICATION_NOT_FOUND":
		return http.StatusNotFound
	case "ALREADY_REDEEMED", "DUPLICATE_SCAN_WINDOW", "VERIFICATION_TICKET_MISMATCH":
		return http.StatusConflict
	case "TAMPER_DETECTED", "ASSET_PREFIX_MISMATCH", "ASSET_NOT_FOUND", "NOT_SOULBOUND":
		return http.StatusUnprocessableEntity
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "ORACLE_UNAVAILABLE", "STORAGE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
