package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_calls_total",
			Help: "Total number of remote calls by service, method and outcome",
		},
		[]string{"service", "method", "status"},
	)

	rpcCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_call_duration_seconds",
			Help:    "Remote call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "method"},
	)

	rpcCallsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rpc_calls_in_flight",
			Help: "Number of remote calls currently executing",
		},
	)

	stackRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stack_running",
			Help: "1 when the compose stack reports running containers",
		},
		[]string{"service"},
	)
)
