package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
)

const (
	defaultServiceLabel = "fleet.service"
	defaultImageLabel   = "fleet.image"
)

// EngineDriver scales services running directly on a container engine.
// Containers belonging to a service carry the service label; scaling up
// starts stopped replicas, scaling down stops the newest running ones.
// Replica containers are pre-provisioned by the deployment tooling; the
// driver only flips them between running and stopped.
type EngineDriver struct {
	cli          *client.Client
	serviceLabel string
	imageLabel   string
	stopTimeout  time.Duration
	pollInterval time.Duration
}

func NewEngineDriver(cfg config.EngineBackendConfig) (*EngineDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: create engine client: %v", ErrBackendUnreachable, err)
	}

	serviceLabel := cfg.ServiceLabel
	if serviceLabel == "" {
		serviceLabel = defaultServiceLabel
	}
	imageLabel := cfg.ImageLabel
	if imageLabel == "" {
		imageLabel = defaultImageLabel
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = 30 * time.Second
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}

	return &EngineDriver{
		cli:          cli,
		serviceLabel: serviceLabel,
		imageLabel:   imageLabel,
		stopTimeout:  stopTimeout,
		pollInterval: poll,
	}, nil
}

func (d *EngineDriver) CurrentInstances(ctx context.Context, serviceID string) (int, error) {
	running, _, err := d.listReplicas(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	return len(running), nil
}

func (d *EngineDriver) Scale(ctx context.Context, serviceID string, target int) (*ScalingResult, error) {
	started := time.Now()

	running, stopped, err := d.listReplicas(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	previous := len(running)

	switch {
	case target > previous:
		need := target - previous
		if need > len(stopped) {
			return nil, fmt.Errorf("%w: need %d more replicas but only %d provisioned",
				ErrBackendRejected, need, len(stopped))
		}
		for _, c := range stopped[:need] {
			if err := d.cli.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
				return nil, fmt.Errorf("%w: start replica %s: %v", ErrBackendInternal, shortID(c.ID), err)
			}
			logger.WithService(serviceID).Infof("Started replica %s", shortID(c.ID))
		}
	case target < previous:
		timeout := int(d.stopTimeout.Seconds())
		for _, c := range running[target:] {
			if err := d.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout}); err != nil {
				return nil, fmt.Errorf("%w: stop replica %s: %v", ErrBackendInternal, shortID(c.ID), err)
			}
			logger.WithService(serviceID).Infof("Stopped replica %s", shortID(c.ID))
		}
	}

	last, err := waitUntil(ctx, d.pollInterval, func(ctx context.Context) (int, bool, error) {
		running, _, err := d.listReplicas(ctx, serviceID)
		if err != nil {
			return 0, false, err
		}
		return len(running), len(running) == target, nil
	})

	result := &ScalingResult{
		ServiceID:         serviceID,
		PreviousInstances: previous,
		NewInstances:      last,
		DurationMs:        time.Since(started).Milliseconds(),
	}
	if errors.Is(err, ErrBackendTimeout) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("timed out waiting for %d running replicas, observed %d", target, last))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *EngineDriver) Describe(ctx context.Context, serviceID string) (*ServiceInfo, error) {
	running, stopped, err := d.listReplicas(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var version string
	if len(running) > 0 {
		version = running[0].Labels[d.imageLabel]
	} else if len(stopped) > 0 {
		version = stopped[0].Labels[d.imageLabel]
	}

	return &ServiceInfo{
		ServiceID:    serviceID,
		Provider:     "engine",
		Version:      version,
		Instances:    len(running),
		Healthy:      len(running),
		MinSupported: 0,
		MaxSupported: len(running) + len(stopped),
	}, nil
}

func (d *EngineDriver) Close() error {
	return d.cli.Close()
}

// listReplicas splits the service's containers into running and stopped,
// each sorted oldest-created first for deterministic start/stop ordering.
func (d *EngineDriver) listReplicas(ctx context.Context, serviceID string) (running, stopped []types.Container, err error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", d.serviceLabel, serviceID))

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		return nil, nil, fmt.Errorf("%w: list containers: %v", ErrBackendUnreachable, err)
	}
	if len(containers) == 0 {
		return nil, nil, fmt.Errorf("%w: no containers labelled %s=%s",
			ErrServiceNotFound, d.serviceLabel, serviceID)
	}

	sort.Slice(containers, func(i, j int) bool { return containers[i].Created < containers[j].Created })

	for _, c := range containers {
		if c.State == "running" {
			running = append(running, c)
		} else {
			stopped = append(stopped, c)
		}
	}
	return running, stopped, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
