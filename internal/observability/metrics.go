package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketpay_db_tx_seconds",
			Help:    "Duration of ledger transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_gateway_requests_total",
			Help: "Gateway calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_settlements_total",
			Help: "Settlement attempts by outcome",
		},
		[]string{"outcome"},
	)

	SettlementRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketpay_settlement_retries_total",
			Help: "Settlement transactions retried after ledger contention",
		},
	)

	SecurityMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketpay_security_mismatches_total",
			Help: "Settlements rejected by verification preconditions",
		},
	)

	PlatformCreditSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketpay_platform_credit_skipped_total",
			Help: "Settlements where the platform fee could not be credited",
		},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketpay_payouts_total",
			Help: "Payout operations by kind",
		},
		[]string{"kind"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketpay_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketpay_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketpay_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
