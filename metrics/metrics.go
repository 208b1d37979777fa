package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan-phase outcomes, labeled by result code
	// ("ACCEPTED" or the rejection code).
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Name:      "scans_total",
			Help:      "The total number of gate scans",
		},
		[]string{"result"},
	)

	// VerificationsTotal counts verify-phase outcomes, labeled by result code.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gate",
			Name:      "verifications_total",
			Help:      "The total number of gate verifications",
		},
		[]string{"result"},
	)

	// VerificationDuration measures the verify phase end to end, including
	// the oracle cross-check (summary with quantiles 0.5, 0.9, and 0.99).
	VerificationDuration = promauto.NewSummary(
		prometheus.SummaryOpts{
			Namespace:  "gate",
			Name:       "verification_duration_seconds",
			Help:       "The total time spent verifying tickets",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
	)

	// OracleLookupsFailed counts oracle reads that could not corroborate the
	// ticket on-chain (soft failures).
	OracleLookupsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gate",
			Name:      "oracle_lookups_failed_total",
			Help:      "The total number of failed asset oracle lookups",
		},
	)

	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)
)
