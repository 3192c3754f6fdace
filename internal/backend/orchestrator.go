package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
)

// OrchestratorDriver talks to a cluster orchestrator's scaling API over HTTP.
// The orchestrator exposes GET /services/{id} with replica counts and
// PUT /services/{id}/replicas accepting {"replicas": n}.
type OrchestratorDriver struct {
	endpoint     string
	pollInterval time.Duration
	client       *http.Client
}

type orchestratorServiceResponse struct {
	ServiceID       string `json:"service_id"`
	DesiredReplicas int    `json:"desired_replicas"`
	ReadyReplicas   int    `json:"ready_replicas"`
	MinReplicas     int    `json:"min_replicas"`
	MaxReplicas     int    `json:"max_replicas"`
}

func NewOrchestratorDriver(cfg config.OrchestratorBackendConfig) *OrchestratorDriver {
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	return &OrchestratorDriver{
		endpoint:     cfg.Endpoint,
		pollInterval: poll,
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *OrchestratorDriver) CurrentInstances(ctx context.Context, serviceID string) (int, error) {
	svc, err := d.fetchService(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	return svc.ReadyReplicas, nil
}

func (d *OrchestratorDriver) Scale(ctx context.Context, serviceID string, target int) (*ScalingResult, error) {
	started := time.Now()

	svc, err := d.fetchService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	previous := svc.ReadyReplicas

	if err := d.setReplicas(ctx, serviceID, target); err != nil {
		return nil, err
	}

	logger.WithService(serviceID).Infof("Orchestrator accepted scale %d -> %d, waiting for ready", previous, target)

	last, err := waitUntil(ctx, d.pollInterval, func(ctx context.Context) (int, bool, error) {
		svc, err := d.fetchService(ctx, serviceID)
		if err != nil {
			return 0, false, err
		}
		return svc.ReadyReplicas, svc.ReadyReplicas == target, nil
	})

	result := &ScalingResult{
		ServiceID:         serviceID,
		PreviousInstances: previous,
		NewInstances:      last,
		DurationMs:        time.Since(started).Milliseconds(),
	}

	if errors.Is(err, ErrBackendTimeout) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("timed out waiting for %d ready replicas, observed %d", target, last))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *OrchestratorDriver) Describe(ctx context.Context, serviceID string) (*ServiceInfo, error) {
	svc, err := d.fetchService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &ServiceInfo{
		ServiceID:    serviceID,
		Provider:     "orchestrator",
		Instances:    svc.DesiredReplicas,
		Healthy:      svc.ReadyReplicas,
		MinSupported: svc.MinReplicas,
		MaxSupported: svc.MaxReplicas,
	}, nil
}

func (d *OrchestratorDriver) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (d *OrchestratorDriver) fetchService(ctx context.Context, serviceID string) (*orchestratorServiceResponse, error) {
	url := fmt.Sprintf("%s/services/%s", d.endpoint, serviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendInternal, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: orchestrator returned %d", ErrBackendInternal, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: orchestrator returned %d", ErrBackendRejected, resp.StatusCode)
	}

	var svc orchestratorServiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&svc); err != nil {
		return nil, fmt.Errorf("%w: decode service: %v", ErrBackendInternal, err)
	}
	return &svc, nil
}

func (d *OrchestratorDriver) setReplicas(ctx context.Context, serviceID string, target int) error {
	body, _ := json.Marshal(map[string]int{"replicas": target})
	url := fmt.Sprintf("%s/services/%s/replicas", d.endpoint, serviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: orchestrator returned %d", ErrBackendRejected, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: orchestrator returned %d", ErrBackendInternal, resp.StatusCode)
	}
	return nil
}
