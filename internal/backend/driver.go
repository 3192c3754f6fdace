package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/config"
)

var (
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrServiceNotFound    = errors.New("service not found")
	ErrBackendRejected    = errors.New("backend rejected scaling request")
	ErrBackendTimeout     = errors.New("backend operation timeout")
	ErrBackendInternal    = errors.New("backend internal error")
)

// ScalingResult reports what a driver actually did. On timeout the driver
// returns partial success: New carries the last observed count and Warnings
// explains the shortfall.
type ScalingResult struct {
	ServiceID         string
	PreviousInstances int
	NewInstances      int
	DurationMs        int64
	Warnings          []string
}

// ServiceInfo describes a backend-managed service for capability validation.
type ServiceInfo struct {
	ServiceID    string
	Provider     string
	Version      string // deployed image or release tag, when the backend exposes one
	Instances    int
	Healthy      int
	MinSupported int
	MaxSupported int
}

// Driver changes the instance count of a fleet service on one backend.
// Scale blocks until the backend reports target ready instances or the
// context deadline passes; drivers never retry internally.
type Driver interface {
	CurrentInstances(ctx context.Context, serviceID string) (int, error)
	Scale(ctx context.Context, serviceID string, target int) (*ScalingResult, error)
	Describe(ctx context.Context, serviceID string) (*ServiceInfo, error)
	Close() error
}

// New builds the driver named by cfg.Scaling.Provider.
func New(cfg *config.Config) (Driver, error) {
	switch cfg.Scaling.Provider {
	case "orchestrator":
		return NewOrchestratorDriver(cfg.Scaling.Orchestrator), nil
	case "engine":
		return NewEngineDriver(cfg.Scaling.Engine)
	case "cloud":
		return NewCloudDriver(cfg.Scaling.Cloud)
	case "simulator":
		return NewSimulatorDriver(SimulatorConfig{}), nil
	}
	return nil, fmt.Errorf("unknown scaling provider %q", cfg.Scaling.Provider)
}

// waitUntil polls fn at interval until it reports done, the context expires,
// or fn fails. On context expiry it returns the last observed count with a
// timeout marker so callers can compose partial-success results.
func waitUntil(ctx context.Context, interval time.Duration, fn func(context.Context) (count int, done bool, err error)) (int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		count, done, err := fn(ctx)
		if err != nil {
			return last, err
		}
		last = count
		if done {
			return last, nil
		}

		select {
		case <-ctx.Done():
			return last, ErrBackendTimeout
		case <-ticker.C:
		}
	}
}
