package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"parchi/config"
	"parchi/db"
	"parchi/gateway"
	"parchi/service"
	"parchi/tracing"
	"parchi/verification"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if tp := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint); tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.FromContext(ctx).WithError(err).Error("failed to shutdown trace provider")
			}
		}()
	}

	sqlDB, err := otelsql.Open("postgres", cfg.PostgresURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		panic(err)
	}
	dbConn := sqlx.NewDb(sqlDB, "postgres")
	defer dbConn.Close()
	db.ApplyPoolLimits(dbConn, cfg.DBMaxOpenConns)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()

	var oracle verification.AssetOracle
	if cfg.OracleURL != "" {
		oracle = gateway.NewOracleClient(cfg.OracleURL, cfg.OracleTimeout)
	} else {
		log.FromContext(ctx).Warn("No oracle URL configured, ledger cross-checks are disabled")
		oracle = &gateway.OracleMock{Unavailable: true}
	}

	err = service.New(cfg, dbConn, redisClient, oracle).Run(ctx)
	if err != nil {
		panic(err)
	}
}
