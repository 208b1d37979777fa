// Package fraud applies the pre-redemption checks that are about operator
// behaviour rather than the ticket itself: duplicate-scan suppression and
// per-agent rate limiting. None of its redis state is load-bearing for
// correctness; the conditional ticket update remains the only gate against
// double redemption.
package fraud

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/redis/go-redis/v9"

	"parchi/entity"
	"parchi/qr"
)

// VerificationCounter counts one agent's recent verification attempts. The
// database is the counter so restarts do not reset the window.
type VerificationCounter interface {
	CountByAgentSince(ctx context.Context, agent string, since time.Time) (int, error)
}

type Config struct {
	// ScanTTL is how long an identical payload is treated as a rapid
	// re-scan of the same physical credential, whoever scans it.
	ScanTTL time.Duration

	// FreshnessWindow is the strict anti-screenshot bound on a payload's
	// issued-at, for deployments that rotate codes. Zero disables it.
	FreshnessWindow time.Duration

	// RateLimit is the max attempts per agent within RateWindow. Zero
	// disables the check.
	RateLimit  int
	RateWindow time.Duration

	// HardRateLimit turns the rate limit from advisory (logged) into a
	// rejection.
	HardRateLimit bool
}

type Guard struct {
	rdb     *redis.Client
	counter VerificationCounter
	config  Config
}

func NewGuard(rdb *redis.Client, counter VerificationCounter, config Config) Guard {
	if rdb == nil {
		panic("rdb is nil")
	}
	if counter == nil {
		panic("counter is nil")
	}
	if config.ScanTTL <= 0 {
		config.ScanTTL = 30 * time.Second
	}
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}

	return Guard{rdb: rdb, counter: counter, config: config}
}

// CheckDuplicateScan claims the payload for ScanTTL. A second scan of the
// same credential within the window is rejected, even from another device:
// one physical ticket waved across two scanners is still one ticket. Redis
// being down fails open: losing this check only costs some duplicate
// PENDING records.
func (g Guard) CheckDuplicateScan(ctx context.Context, qrData string) error {
	key := scanKey(qrData)

	claimed, err := g.rdb.SetNX(ctx, key, "1", g.config.ScanTTL).Result()
	if err != nil {
		log.FromContext(ctx).
			WithField("error", err).
			Warn("Duplicate scan check unavailable, allowing scan")
		return nil
	}

	if !claimed {
		return entity.ErrDuplicateScan
	}

	return nil
}

// CheckAgentRateLimit counts the agent's attempts in the trailing window.
// Over the limit it rejects in hard mode and only logs otherwise.
func (g Guard) CheckAgentRateLimit(ctx context.Context, agent string) error {
	if g.config.RateLimit <= 0 {
		return nil
	}

	count, err := g.counter.CountByAgentSince(ctx, agent, time.Now().Add(-g.config.RateWindow))
	if err != nil {
		log.FromContext(ctx).
			WithField("error", err).
			Warn("Rate limit check unavailable, allowing scan")
		return nil
	}

	if count < g.config.RateLimit {
		return nil
	}

	if g.config.HardRateLimit {
		return entity.ErrRateLimited
	}

	log.FromContext(ctx).
		WithField("agent", agent).
		WithField("attempts", count).
		Warn("Agent exceeded verification rate limit")

	return nil
}

// CheckFreshness applies the strict anti-screenshot window on top of the
// codec's long validity bound. Disabled unless a window is configured,
// since most deployments print static tickets rather than rotating codes.
func (g Guard) CheckFreshness(payload qr.Payload) error {
	if g.config.FreshnessWindow <= 0 {
		return nil
	}

	return qr.ValidateFreshness(payload, g.config.FreshnessWindow)
}

func scanKey(qrData string) string {
	sum := sha256.Sum256([]byte(qrData))
	return "scan:" + hex.EncodeToString(sum[:8])
}
