package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"parchi/config"
	"parchi/db"
	"parchi/db/assets"
	"parchi/db/audit"
	"parchi/db/read_model_gate_report"
	"parchi/db/tickets"
	"parchi/db/verifications"
	"parchi/fraud"
	"parchi/http"
	"parchi/pubsub"
	"parchi/pubsub/bus"
	"parchi/pubsub/command"
	"parchi/pubsub/event"
	"parchi/pubsub/outbox"
	"parchi/verification"
)

func init() {
	log.Init(logrus.InfoLevel)
}

type Service struct {
	db              *sqlx.DB
	forwarder       *forwarder.Forwarder
	watermillRouter *message.Router
	httpServer      *http.Server
}

func New(
	cfg config.Config,
	dbConn *sqlx.DB,
	redisClient *redis.Client,
	oracle verification.AssetOracle,
) Service {
	ticketsRepo := tickets.NewPostgresRepository(dbConn)
	verificationsRepo := verifications.NewPostgresRepository(dbConn)
	auditRepo := audit.NewPostgresRepository(dbConn)
	assetsRepo := assets.NewPostgresRepository(dbConn)
	gateReportModel := read_model_gate_report.NewGateReportReadModel(dbConn)

	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := bus.NewEventBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create event bus: %w", err))
	}

	commandBus, err := bus.NewCommandBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create command bus: %w", err))
	}

	guard := fraud.NewGuard(redisClient, verificationsRepo, fraud.Config{
		ScanTTL:         cfg.ScanTTL,
		FreshnessWindow: cfg.FreshnessWindow,
		RateLimit:       cfg.RateLimit,
		RateWindow:      cfg.RateWindow,
		HardRateLimit:   cfg.HardRateLimit,
	})

	verifier := verification.NewService(
		ticketsRepo,
		verificationsRepo,
		oracle,
		guard,
		eventBus,
		verification.Config{
			PayloadMaxAge: cfg.PayloadMaxAge,
			OracleTimeout: cfg.OracleTimeout,
		},
	)

	eventsHandler := event.NewHandler(auditRepo, commandBus)
	commandsHandler := command.NewHandler(oracle, assetsRepo)

	eventProcessorConfig := event.NewProcessorConfig(redisClient, watermillLogger)
	commandProcessorConfig := command.NewProcessorConfig(redisClient, watermillLogger)

	outboxForwarder, err := outbox.NewForwarder(dbConn, redisClient, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create outbox forwarder: %w", err))
	}

	watermillRouter, err := pubsub.NewWatermillRouter(
		eventProcessorConfig,
		eventsHandler,
		commandProcessorConfig,
		commandsHandler,
		gateReportModel,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		cfg.HTTPAddr,
		verifier,
		ticketsRepo,
		gateReportModel,
		cfg.GateJWTSecret,
	)

	return Service{
		dbConn,
		outboxForwarder,
		watermillRouter,
		httpServer,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := outbox.InitializeSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize outbox schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.forwarder.Run(ctx)
	})

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// the service should not pass health checks before the router consumes
		<-s.watermillRouter.Running()

		return s.httpServer.Run(ctx)
	})

	return g.Wait()
}
