package collector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// MockCollector produces synthetic snapshots for tests and local runs.
// Base values can be adjusted at runtime to steer scenarios.
type MockCollector struct {
	mu        sync.Mutex
	baseCPU   float64
	baseMem   float64
	variance  float64
	instances map[string]int
	custom    map[string]float64
	failWith  error
}

type MockCollectorConfig struct {
	BaseCPU    float64
	BaseMemory float64
	Variance   float64
}

func NewMockCollector(cfg MockCollectorConfig) *MockCollector {
	return &MockCollector{
		baseCPU:   cfg.BaseCPU,
		baseMem:   cfg.BaseMemory,
		variance:  cfg.Variance,
		instances: make(map[string]int),
		custom:    make(map[string]float64),
	}
}

func (c *MockCollector) SetBaseCPU(cpu float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseCPU = cpu
}

func (c *MockCollector) SetServiceInstances(serviceID string, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[serviceID] = count
}

func (c *MockCollector) SetCustomMetric(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.custom[name] = value
}

// FailWith makes every subsequent Collect return err; nil clears it.
func (c *MockCollector) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

func (c *MockCollector) Collect(ctx context.Context, serviceID string) (*models.ServiceMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return nil, c.failWith
	}

	count, ok := c.instances[serviceID]
	if !ok {
		return nil, ErrServiceNotFound
	}

	jitter := func(base float64) float64 {
		v := base + (rand.Float64()-0.5)*c.variance
		if v < 0 {
			return 0
		}
		if v > 100 {
			return 100
		}
		return v
	}

	custom := make(map[string]float64, len(c.custom))
	for k, v := range c.custom {
		custom[k] = v
	}

	return &models.ServiceMetrics{
		ServiceID:  serviceID,
		CapturedAt: time.Now(),
		Resources: models.ResourceMetrics{
			CPUUsage:    jitter(c.baseCPU),
			MemoryUsage: jitter(c.baseMem),
			NetworkIn:   1024 * c.baseCPU,
			NetworkOut:  2048 * c.baseCPU,
		},
		Performance: models.PerformanceMetrics{
			ResponseTimeMs: 10 + c.baseCPU,
			ThroughputRPS:  float64(count) * 250,
			ErrorRate:      0.001,
			QueueLength:    c.baseCPU / 10,
		},
		Instances: models.InstanceCounts{
			Current: count,
			Healthy: count,
		},
		Custom: custom,
	}, nil
}

func (c *MockCollector) HealthCheck(ctx context.Context) error {
	return nil
}

func (c *MockCollector) Close() error {
	return nil
}
