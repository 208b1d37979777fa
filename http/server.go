package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"parchi/entity"
	"parchi/verification"
)

type TicketsRepository interface {
	Store(ctx context.Context, ticket entity.Ticket) error
	FindByID(ctx context.Context, ticketID string) (entity.Ticket, error)
}

type VerificationService interface {
	Scan(ctx context.Context, req verification.ScanRequest) (verification.ScanResult, error)
	Verify(ctx context.Context, req verification.VerifyRequest) (verification.VerifyResult, error)
}

type GateReportReadModel interface {
	GateReport(ctx context.Context, eventID string) (entity.GateReport, error)
}

type Server struct {
	addr            string
	e               *echo.Echo
	verifier        VerificationService
	ticketsRepo     TicketsRepository
	gateReportModel GateReportReadModel
}

func NewServer(
	addr string,
	verifier VerificationService,
	ticketsRepo TicketsRepository,
	gateReportModel GateReportReadModel,
	gateJWTSecret string,
) *Server {
	e := echoHTTP.NewEcho()
	e.Validator = newValidator()
	e.Use(otelecho.Middleware("parchi"))

	server := &Server{
		addr:            addr,
		e:               e,
		verifier:        verifier,
		ticketsRepo:     ticketsRepo,
		gateReportModel: gateReportModel,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/tickets", server.PostTickets)
	e.GET("/tickets/:ticket_id", server.GetTicket)
	e.GET("/tickets/:ticket_id/qr.png", server.GetTicketQR)

	gate := e.Group("/gate")
	if gateJWTSecret != "" {
		gate.Use(agentAuthMiddleware(gateJWTSecret))
	}
	gate.POST("/scan", server.PostGateScan)
	gate.POST("/verify", server.PostGateVerify)

	e.GET("/events/:event_id/gate-report", server.GetGateReport)

	return server
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(ctx)
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
