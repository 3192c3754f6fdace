package rules

import (
	"strings"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// ExtractMetric resolves a dotted metric path against a snapshot. Unknown
// paths resolve to 0 and never raise; custom.<name> falls back to the
// custom map.
func ExtractMetric(metrics *models.ServiceMetrics, path string) float64 {
	switch path {
	case "cpu.usage":
		return metrics.Resources.CPUUsage
	case "memory.usage":
		return metrics.Resources.MemoryUsage
	case "network.in":
		return metrics.Resources.NetworkIn
	case "network.out":
		return metrics.Resources.NetworkOut
	case "performance.responseTime":
		return metrics.Performance.ResponseTimeMs
	case "performance.throughput":
		return metrics.Performance.ThroughputRPS
	case "performance.errorRate":
		return metrics.Performance.ErrorRate
	case "performance.queueLength":
		return metrics.Performance.QueueLength
	case "instances.current":
		return float64(metrics.Instances.Current)
	case "instances.healthy":
		return float64(metrics.Instances.Healthy)
	case "instances.unhealthy":
		return float64(metrics.Instances.Unhealthy)
	}

	if name, ok := strings.CutPrefix(path, "custom."); ok {
		return metrics.Custom[name]
	}

	return 0
}
