package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"parchi/entity"
	"parchi/qr"
)

type postTicketRequest struct {
	EventID        string `json:"event_id" validate:"required"`
	TicketNumber   int    `json:"ticket_number" validate:"required,gt=0"`
	HolderIdentity string `json:"holder_identity" validate:"required"`
	AssetID        string `json:"asset_id" validate:"required,min=8"`
	PurchasePrice  string `json:"purchase_price"`
}

type postTicketResponse struct {
	TicketID string `json:"ticket_id"`
	QRData   string `json:"qr_data"`
}

func (s Server) PostTickets(c echo.Context) error {
	var request postTicketRequest
	if err := c.Bind(&request); err != nil {
		return err
	}
	if err := c.Validate(&request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	price := decimal.Zero
	if request.PurchasePrice != "" {
		var err error
		price, err = decimal.NewFromString(request.PurchasePrice)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid purchase_price")
		}
	}

	issuedAt := time.Now().UTC()
	qrData, err := qr.Encode(request.EventID, request.TicketNumber, request.AssetID, issuedAt)
	if err != nil {
		if errors.Is(err, entity.ErrMalformedPayload) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return fmt.Errorf("could not encode ticket payload: %w", err)
	}

	ticket := entity.Ticket{
		TicketID:       uuid.NewString(),
		EventID:        request.EventID,
		TicketNumber:   request.TicketNumber,
		HolderIdentity: request.HolderIdentity,
		AssetID:        request.AssetID,
		PurchasePrice:  price,
		Status:         entity.TicketStatusActive,
		QRData:         qrData,
		PurchasedAt:    issuedAt,
	}

	if err := s.ticketsRepo.Store(c.Request().Context(), ticket); err != nil {
		return fmt.Errorf("could not store ticket: %w", err)
	}

	return c.JSON(http.StatusCreated, postTicketResponse{
		TicketID: ticket.TicketID,
		QRData:   qrData,
	})
}

func (s Server) GetTicket(c echo.Context) error {
	ticket, err := s.ticketsRepo.FindByID(c.Request().Context(), c.Param("ticket_id"))
	if errors.Is(err, entity.ErrTicketNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	} else if err != nil {
		return fmt.Errorf("could not get ticket: %w", err)
	}

	return c.JSON(http.StatusOK, ticket)
}

func (s Server) GetTicketQR(c echo.Context) error {
	ticket, err := s.ticketsRepo.FindByID(c.Request().Context(), c.Param("ticket_id"))
	if errors.Is(err, entity.ErrTicketNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	} else if err != nil {
		return fmt.Errorf("could not get ticket: %w", err)
	}

	png, err := qr.RenderPNG(ticket.QRData, 256)
	if err != nil {
		return fmt.Errorf("could not render QR code: %w", err)
	}

	return c.Blob(http.StatusOK, "image/png", png)
}
