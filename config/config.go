package config

import (
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	PostgresURL    string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"Postgres connection string"`
	DBMaxOpenConns int    `long:"db-max-open-conns" env:"DB_MAX_OPEN_CONNS" default:"25" description:"Postgres connection pool size"`
	RedisAddr      string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`

	OracleURL     string        `long:"oracle-url" env:"ORACLE_URL" description:"Asset oracle base URL, empty disables the ledger cross-check"`
	OracleTimeout time.Duration `long:"oracle-timeout" env:"ORACLE_TIMEOUT" default:"3s" description:"Asset oracle request timeout"`

	GateJWTSecret string `long:"gate-jwt-secret" env:"GATE_JWT_SECRET" description:"HMAC secret for gate agent tokens, empty disables auth"`

	PayloadMaxAge   time.Duration `long:"payload-max-age" env:"PAYLOAD_MAX_AGE" default:"24h" description:"Max age of a scannable payload"`
	ScanTTL         time.Duration `long:"scan-ttl" env:"SCAN_TTL" default:"30s" description:"Duplicate-scan suppression window"`
	FreshnessWindow time.Duration `long:"freshness-window" env:"FRESHNESS_WINDOW" description:"Strict anti-screenshot payload age bound, 0 disables"`
	RateLimit       int           `long:"rate-limit" env:"RATE_LIMIT" default:"60" description:"Max verification attempts per agent per window, 0 disables"`
	RateWindow      time.Duration `long:"rate-window" env:"RATE_WINDOW" default:"1m" description:"Agent rate limit window"`
	HardRateLimit   bool          `long:"hard-rate-limit" env:"HARD_RATE_LIMIT" description:"Reject instead of logging when the rate limit is exceeded"`

	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint, empty disables tracing"`
}

func Load() (Config, error) {
	// local development convenience, missing file is fine
	_ = godotenv.Load()

	var cfg Config
	if _, err := flags.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	return cfg, nil
}
