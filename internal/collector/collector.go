package collector

import (
	"context"
	"errors"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

var (
	ErrSourceUnreachable = errors.New("metric source unreachable")
	ErrSourceTimeout     = errors.New("metric source timeout")
	ErrSourceMalformed   = errors.New("metric source returned malformed data")
	ErrServiceNotFound   = errors.New("service not found at metric source")
)

// Collector pulls one telemetry snapshot for a service. Implementations do
// not retry; retry policy belongs to the control loop.
type Collector interface {
	// Collect fetches the current ServiceMetrics snapshot for a service.
	Collect(ctx context.Context, serviceID string) (*models.ServiceMetrics, error)

	// HealthCheck verifies the collector can reach its data source.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the collector.
	Close() error
}
