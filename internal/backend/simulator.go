package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// ReplicaState is the lifecycle of one simulated replica.
type ReplicaState string

const (
	ReplicaProvisioning ReplicaState = "provisioning"
	ReplicaActive       ReplicaState = "active"
	ReplicaDraining     ReplicaState = "draining"
	ReplicaTerminated   ReplicaState = "terminated"
)

// Replica is one simulated instance of a service.
type Replica struct {
	ID        string
	ServiceID string
	State     ReplicaState
	CreatedAt time.Time
}

// ReplicaCallbacks let tests and the simulator binary observe transitions.
type ReplicaCallbacks struct {
	OnActivated  func(r *Replica)
	OnTerminated func(r *Replica)
}

// SimulatorDriver is a fully in-memory backend. New replicas pass through a
// provisioning delay before counting as active; removed replicas drain before
// terminating. Useful for local runs and integration tests without a real
// backend.
type SimulatorDriver struct {
	mu            sync.RWMutex
	replicas      map[string][]*Replica
	provisionTime time.Duration
	drainTime     time.Duration
	pollInterval  time.Duration
	callbacks     ReplicaCallbacks
}

type SimulatorConfig struct {
	ProvisionTime time.Duration
	DrainTime     time.Duration
	PollInterval  time.Duration
	Callbacks     ReplicaCallbacks
}

func NewSimulatorDriver(cfg SimulatorConfig) *SimulatorDriver {
	if cfg.ProvisionTime == 0 {
		cfg.ProvisionTime = 2 * time.Second
	}
	if cfg.DrainTime == 0 {
		cfg.DrainTime = time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &SimulatorDriver{
		replicas:      make(map[string][]*Replica),
		provisionTime: cfg.ProvisionTime,
		drainTime:     cfg.DrainTime,
		pollInterval:  cfg.PollInterval,
		callbacks:     cfg.Callbacks,
	}
}

// InitializeService seeds a service with count active replicas.
func (d *SimulatorDriver) InitializeService(serviceID string, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < count; i++ {
		d.replicas[serviceID] = append(d.replicas[serviceID], &Replica{
			ID:        models.NewUUID(),
			ServiceID: serviceID,
			State:     ReplicaActive,
			CreatedAt: time.Now(),
		})
	}
	logger.WithService(serviceID).Infof("Simulator initialized with %d active replicas", count)
}

func (d *SimulatorDriver) CurrentInstances(ctx context.Context, serviceID string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	replicas, ok := d.replicas[serviceID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return countActive(replicas), nil
}

func (d *SimulatorDriver) Scale(ctx context.Context, serviceID string, target int) (*ScalingResult, error) {
	started := time.Now()

	if target < 0 {
		return nil, fmt.Errorf("%w: negative target %d", ErrBackendRejected, target)
	}

	d.mu.Lock()
	replicas, ok := d.replicas[serviceID]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	previous := countActive(replicas)

	switch {
	case target > previous:
		for i := 0; i < target-previous; i++ {
			r := &Replica{
				ID:        models.NewUUID(),
				ServiceID: serviceID,
				State:     ReplicaProvisioning,
				CreatedAt: time.Now(),
			}
			d.replicas[serviceID] = append(d.replicas[serviceID], r)
			go d.finishProvisioning(r)
		}
	case target < previous:
		drained := 0
		for i := len(replicas) - 1; i >= 0 && drained < previous-target; i-- {
			if replicas[i].State != ReplicaActive {
				continue
			}
			replicas[i].State = ReplicaDraining
			go d.finishDraining(replicas[i])
			drained++
		}
	}
	d.mu.Unlock()

	last, err := waitUntil(ctx, d.pollInterval, func(ctx context.Context) (int, bool, error) {
		d.mu.RLock()
		n := countActive(d.replicas[serviceID])
		d.mu.RUnlock()
		return n, n == target, nil
	})

	result := &ScalingResult{
		ServiceID:         serviceID,
		PreviousInstances: previous,
		NewInstances:      last,
		DurationMs:        time.Since(started).Milliseconds(),
	}
	if errors.Is(err, ErrBackendTimeout) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("timed out waiting for %d active replicas, observed %d", target, last))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *SimulatorDriver) Describe(ctx context.Context, serviceID string) (*ServiceInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	replicas, ok := d.replicas[serviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}
	return &ServiceInfo{
		ServiceID:    serviceID,
		Provider:     "simulator",
		Instances:    len(replicas),
		Healthy:      countActive(replicas),
		MinSupported: 0,
		MaxSupported: 1 << 10,
	}, nil
}

func (d *SimulatorDriver) Close() error {
	return nil
}

// Replicas returns a copy of the replica records for one service.
func (d *SimulatorDriver) Replicas(serviceID string) []Replica {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Replica, 0, len(d.replicas[serviceID]))
	for _, r := range d.replicas[serviceID] {
		out = append(out, *r)
	}
	return out
}

func (d *SimulatorDriver) finishProvisioning(r *Replica) {
	time.Sleep(d.provisionTime)

	d.mu.Lock()
	r.State = ReplicaActive
	d.mu.Unlock()

	if d.callbacks.OnActivated != nil {
		d.callbacks.OnActivated(r)
	}
}

func (d *SimulatorDriver) finishDraining(r *Replica) {
	time.Sleep(d.drainTime)

	d.mu.Lock()
	r.State = ReplicaTerminated
	d.mu.Unlock()

	if d.callbacks.OnTerminated != nil {
		d.callbacks.OnTerminated(r)
	}
}

func countActive(replicas []*Replica) int {
	n := 0
	for _, r := range replicas {
		if r.State == ReplicaActive {
			n++
		}
	}
	return n
}
