package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// gRPC metrics
	GRPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	// Transfer metrics
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_transfers_total",
			Help: "Total number of transfer requests by outcome",
		},
		[]string{"result"}, // success, invalid_amount, not_found, insufficient_funds, overloaded, error
	)

	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transfer_transfer_duration_seconds",
			Help:    "Time to complete a transfer including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	TransferAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_attempts_total",
			Help: "Total number of executor attempts",
		},
	)

	TransferConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_conflicts_total",
			Help: "Total number of attempts aborted by a serialization conflict",
		},
	)

	TransferOverloadedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transfer_overloaded_total",
			Help: "Total number of transfers that exhausted their retry attempts",
		},
	)
)
