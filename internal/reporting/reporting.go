package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// HistorySource supplies the records a report is computed from. Both
// methods cover the half-open window [start, end).
type HistorySource interface {
	DecisionsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingDecision, error)
	EventsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingEvent, error)
}

// ServiceSummary aggregates one service's activity inside the window.
type ServiceSummary struct {
	ServiceID        string  `json:"service_id"`
	Decisions        int     `json:"decisions"`
	ScaleUps         int     `json:"scale_ups"`
	ScaleDowns       int     `json:"scale_downs"`
	Executions       int     `json:"executions"`
	FailedScalings   int     `json:"failed_scalings"`
	SuccessRate      float64 `json:"success_rate"`
	AvgConfidence    float64 `json:"avg_confidence"`
	PeakInstances    int     `json:"peak_instances"`
	InstanceHours    float64 `json:"instance_hours"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Report is the fleet-wide activity summary for one window.
type Report struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	WindowStart time.Time                  `json:"window_start"`
	WindowEnd   time.Time                  `json:"window_end"`
	Services    map[string]*ServiceSummary `json:"services"`
	Totals      ServiceSummary             `json:"totals"`
}

// Reporter turns decision and event history into periodic activity reports.
type Reporter struct {
	source          HistorySource
	costPerInstHour float64
}

func NewReporter(source HistorySource, cfg config.ReportingConfig) *Reporter {
	return &Reporter{
		source:          source,
		costPerInstHour: cfg.CostPerInstanceHour,
	}
}

// Generate builds the report for [start, end).
func (r *Reporter) Generate(ctx context.Context, start, end time.Time) (*Report, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("report window end %s is not after start %s", end, start)
	}

	decisions, err := r.source.DecisionsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	scalings, err := r.source.EventsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load scaling events: %w", err)
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		WindowStart: start,
		WindowEnd:   end,
		Services:    make(map[string]*ServiceSummary),
	}

	confidenceSums := make(map[string]float64)
	for _, d := range decisions {
		s := report.summary(d.ServiceID)
		s.Decisions++
		switch d.Action {
		case models.ActionScaleUp:
			s.ScaleUps++
		case models.ActionScaleDown:
			s.ScaleDowns++
		}
		confidenceSums[d.ServiceID] += d.Confidence
		if d.RecommendedInstances > s.PeakInstances {
			s.PeakInstances = d.RecommendedInstances
		}
	}

	for _, e := range scalings {
		s := report.summary(e.ServiceID)
		s.Executions++
		if !e.Success {
			s.FailedScalings++
		}
	}

	windowHours := end.Sub(start).Hours()
	for serviceID, s := range report.Services {
		if s.Decisions > 0 {
			s.AvgConfidence = confidenceSums[serviceID] / float64(s.Decisions)
		}
		if s.Executions > 0 {
			s.SuccessRate = float64(s.Executions-s.FailedScalings) / float64(s.Executions)
		}
		// Advisory cost estimate: peak recommendation held for the window.
		s.InstanceHours = float64(s.PeakInstances) * windowHours
		s.EstimatedCostUSD = s.InstanceHours * r.costPerInstHour

		report.Totals.Decisions += s.Decisions
		report.Totals.ScaleUps += s.ScaleUps
		report.Totals.ScaleDowns += s.ScaleDowns
		report.Totals.Executions += s.Executions
		report.Totals.FailedScalings += s.FailedScalings
		report.Totals.InstanceHours += s.InstanceHours
		report.Totals.EstimatedCostUSD += s.EstimatedCostUSD
	}
	if report.Totals.Executions > 0 {
		report.Totals.SuccessRate = float64(report.Totals.Executions-report.Totals.FailedScalings) /
			float64(report.Totals.Executions)
	}

	logger.Infof("Report generated: %d services, %d decisions, %d executions",
		len(report.Services), report.Totals.Decisions, report.Totals.Executions)
	return report, nil
}

func (rep *Report) summary(serviceID string) *ServiceSummary {
	s, ok := rep.Services[serviceID]
	if !ok {
		s = &ServiceSummary{ServiceID: serviceID}
		rep.Services[serviceID] = s
	}
	return s
}

// ServiceIDs lists the services in the report in stable order.
func (rep *Report) ServiceIDs() []string {
	ids := make([]string, 0, len(rep.Services))
	for id := range rep.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
