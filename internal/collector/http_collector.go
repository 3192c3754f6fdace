package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// HTTPCollector pulls snapshots from a probe endpoint that serves
// GET {endpoint}/{service_id} as JSON. Unknown fields are tolerated;
// missing required fields fail the poll as malformed.
type HTTPCollector struct {
	client   *http.Client
	endpoint string
}

type HTTPCollectorConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPCollector(cfg HTTPCollectorConfig) *HTTPCollector {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPCollector{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
	}
}

// probeResponse is the wire shape the metric probe serves.
type probeResponse struct {
	ServiceID  string `json:"service_id"`
	CapturedAt string `json:"captured_at"`
	Resources  struct {
		CPUUsage    float64 `json:"cpu_usage"`
		MemoryUsage float64 `json:"memory_usage"`
		NetworkIn   float64 `json:"network_in"`
		NetworkOut  float64 `json:"network_out"`
	} `json:"resources"`
	Performance struct {
		ResponseTimeMs float64 `json:"response_time_ms"`
		ThroughputRPS  float64 `json:"throughput_rps"`
		ErrorRate      float64 `json:"error_rate"`
		QueueLength    float64 `json:"queue_length"`
	} `json:"performance"`
	Instances struct {
		Current   int `json:"current"`
		Healthy   int `json:"healthy"`
		Unhealthy int `json:"unhealthy"`
	} `json:"instances"`
	Custom map[string]float64 `json:"custom"`
}

func (c *HTTPCollector) Collect(ctx context.Context, serviceID string) (*models.ServiceMetrics, error) {
	url := fmt.Sprintf("%s/%s", c.endpoint, serviceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrSourceUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.WithService(serviceID).Debugf("Collecting metrics from %s", url)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrSourceTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrServiceNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrSourceUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrSourceUnreachable, err)
	}

	var probe probeResponse
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}

	metrics, err := c.convertResponse(serviceID, &probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}

	return metrics, nil
}

func (c *HTTPCollector) convertResponse(serviceID string, probe *probeResponse) (*models.ServiceMetrics, error) {
	capturedAt := time.Now()
	if probe.CapturedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, probe.CapturedAt); err == nil {
			capturedAt = parsed
		}
	}

	metrics := &models.ServiceMetrics{
		ServiceID:  serviceID,
		CapturedAt: capturedAt,
		Resources: models.ResourceMetrics{
			CPUUsage:    probe.Resources.CPUUsage,
			MemoryUsage: probe.Resources.MemoryUsage,
			NetworkIn:   probe.Resources.NetworkIn,
			NetworkOut:  probe.Resources.NetworkOut,
		},
		Performance: models.PerformanceMetrics{
			ResponseTimeMs: probe.Performance.ResponseTimeMs,
			ThroughputRPS:  probe.Performance.ThroughputRPS,
			ErrorRate:      probe.Performance.ErrorRate,
			QueueLength:    probe.Performance.QueueLength,
		},
		Instances: models.InstanceCounts{
			Current:   probe.Instances.Current,
			Healthy:   probe.Instances.Healthy,
			Unhealthy: probe.Instances.Unhealthy,
		},
		Custom: probe.Custom,
	}

	if err := metrics.Validate(); err != nil {
		return nil, err
	}

	return metrics, nil
}

func (c *HTTPCollector) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *HTTPCollector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
