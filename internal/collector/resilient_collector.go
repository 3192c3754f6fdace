package collector

import (
	"context"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/resilience"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// ResilientCollector wraps a Collector with a circuit breaker so a dead probe
// cannot stall every poll at full timeout. It does not retry within a poll;
// the control loop owns retry cadence.
type ResilientCollector struct {
	collector      Collector
	circuitBreaker *resilience.CircuitBreaker
}

type ResilientCollectorConfig struct {
	Collector     Collector
	MaxFailures   int
	Timeout       time.Duration
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientCollector(cfg ResilientCollectorConfig) *ResilientCollector {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "collector",
		FailureThreshold: cfg.MaxFailures,
		RecoveryTimeout:  cfg.Timeout,
		OnStateChange:    cfg.OnStateChange,
	})

	return &ResilientCollector{
		collector:      cfg.Collector,
		circuitBreaker: cb,
	}
}

func (c *ResilientCollector) Collect(ctx context.Context, serviceID string) (*models.ServiceMetrics, error) {
	var metrics *models.ServiceMetrics

	err := c.circuitBreaker.Execute(func() error {
		var err error
		metrics, err = c.collector.Collect(ctx, serviceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return metrics, nil
}

func (c *ResilientCollector) HealthCheck(ctx context.Context) error {
	return c.collector.HealthCheck(ctx)
}

func (c *ResilientCollector) Close() error {
	return c.collector.Close()
}

func (c *ResilientCollector) CircuitState() resilience.State {
	return c.circuitBreaker.State()
}

func (c *ResilientCollector) ResetCircuit() {
	c.circuitBreaker.Reset()
}
