package models

import (
	"fmt"
	"time"
)

// ResourceMetrics holds resource-level telemetry for a service.
// CPU and memory are percentages in [0,100]; network counters are bytes/sec.
type ResourceMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	NetworkIn   float64 `json:"network_in"`
	NetworkOut  float64 `json:"network_out"`
}

// PerformanceMetrics holds request-level telemetry for a service.
type PerformanceMetrics struct {
	ResponseTimeMs float64 `json:"response_time_ms"`
	ThroughputRPS  float64 `json:"throughput_rps"`
	ErrorRate      float64 `json:"error_rate"`
	QueueLength    float64 `json:"queue_length"`
}

// InstanceCounts holds the replica counts reported by the backend.
type InstanceCounts struct {
	Current   int `json:"current"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
}

// ServiceMetrics is the latest telemetry snapshot for one service.
// Snapshots overwrite each other; there is no accumulation here.
type ServiceMetrics struct {
	ServiceID   string             `json:"service_id"`
	CapturedAt  time.Time          `json:"captured_at"`
	Resources   ResourceMetrics    `json:"resources"`
	Performance PerformanceMetrics `json:"performance"`
	Instances   InstanceCounts     `json:"instances"`
	Custom      map[string]float64 `json:"custom,omitempty"`
}

// Validate checks the invariants a collector must deliver.
func (m *ServiceMetrics) Validate() error {
	if m.ServiceID == "" {
		return fmt.Errorf("service_id is required")
	}
	if m.CapturedAt.IsZero() {
		return fmt.Errorf("captured_at is required")
	}
	if m.Resources.CPUUsage < 0 || m.Resources.CPUUsage > 100 {
		return fmt.Errorf("cpu_usage %.2f out of range [0,100]", m.Resources.CPUUsage)
	}
	if m.Resources.MemoryUsage < 0 || m.Resources.MemoryUsage > 100 {
		return fmt.Errorf("memory_usage %.2f out of range [0,100]", m.Resources.MemoryUsage)
	}
	if m.Resources.NetworkIn < 0 || m.Resources.NetworkOut < 0 {
		return fmt.Errorf("network counters must be non-negative")
	}
	if m.Instances.Current < 0 || m.Instances.Healthy < 0 || m.Instances.Unhealthy < 0 {
		return fmt.Errorf("instance counts must be non-negative")
	}
	if m.Instances.Healthy+m.Instances.Unhealthy > m.Instances.Current+1 {
		return fmt.Errorf("healthy (%d) + unhealthy (%d) exceeds current (%d)",
			m.Instances.Healthy, m.Instances.Unhealthy, m.Instances.Current)
	}
	return nil
}

// Clone returns a deep copy so store readers never share the custom map.
func (m *ServiceMetrics) Clone() *ServiceMetrics {
	cp := *m
	if m.Custom != nil {
		cp.Custom = make(map[string]float64, len(m.Custom))
		for k, v := range m.Custom {
			cp.Custom[k] = v
		}
	}
	return &cp
}
