package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the fleet autoscaler.
var (
	CollectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetscaler_collections_total",
			Help: "Metric collection attempts per service",
		},
		[]string{"service_id", "status"},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetscaler_decisions_total",
			Help: "Scaling decisions per service by action",
		},
		[]string{"service_id", "action"},
	)

	ScalingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetscaler_scaling_events_total",
			Help: "Executed scalings per service by outcome",
		},
		[]string{"service_id", "status"},
	)

	HookFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetscaler_hook_failures_total",
			Help: "Failed pre/post scaling hooks",
		},
		[]string{"service_id", "phase"},
	)

	ServiceInstances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetscaler_service_instances",
			Help: "Current instance count per service",
		},
		[]string{"service_id"},
	)

	ServiceCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetscaler_service_cpu_percent",
			Help: "Latest CPU usage per service in percent",
		},
		[]string{"service_id"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetscaler_circuit_breaker_state",
			Help: "Collector circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service_id"},
	)

	CollectionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetscaler_collection_duration_seconds",
			Help:    "Metric collection latency per service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service_id"},
	)

	ScalingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetscaler_scaling_duration_seconds",
			Help:    "End-to-end scaling duration per service",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service_id"},
	)
)
