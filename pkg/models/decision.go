package models

import "time"

// Urgency grades how strongly the evaluated conditions back a decision.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// ServiceState is the control loop's per-service position. A metrics
// update moves IDLE to DECIDING; a non-MAINTAIN decision moves to
// EXECUTING; completed execution moves to COOLING_DOWN until the
// direction's cooldown window closes.
type ServiceState string

const (
	StateIdle        ServiceState = "IDLE"
	StateDeciding    ServiceState = "DECIDING"
	StateExecuting   ServiceState = "EXECUTING"
	StateCoolingDown ServiceState = "COOLING_DOWN"
)

// UrgencyFromConfidence maps rule confidence onto an urgency grade.
func UrgencyFromConfidence(confidence float64) Urgency {
	switch {
	case confidence >= 0.9:
		return UrgencyCritical
	case confidence >= 0.7:
		return UrgencyHigh
	case confidence >= 0.5:
		return UrgencyMedium
	}
	return UrgencyLow
}

// ScalingDecision is the decision engine's verdict for one service at one
// instant. Reasoning is ordered: each policy stage appends its note.
type ScalingDecision struct {
	Timestamp            time.Time          `json:"timestamp"`
	ServiceID            string             `json:"service_id"`
	CurrentInstances     int                `json:"current_instances"`
	RecommendedInstances int                `json:"recommended_instances"`
	Action               ActionKind         `json:"action"`
	Urgency              Urgency            `json:"urgency"`
	Confidence           float64            `json:"confidence"`
	Reasoning            []string           `json:"reasoning"`
	TriggeredRuleIDs     []string           `json:"triggered_rule_ids,omitempty"`
	MetricsUsed          map[string]float64 `json:"metrics_used,omitempty"`
	ApprovalRequired     bool               `json:"approval_required,omitempty"`
	CooldownActive       bool               `json:"cooldown_active,omitempty"`
	IsEmergency          bool               `json:"is_emergency,omitempty"`
}

// AddReason appends a reasoning entry, preserving order of application.
func (d *ScalingDecision) AddReason(reason string) {
	d.Reasoning = append(d.Reasoning, reason)
}

// RecomputeAction derives the action from the recommended/current relation.
// Called after every stage that edits RecommendedInstances.
func (d *ScalingDecision) RecomputeAction() {
	switch {
	case d.RecommendedInstances > d.CurrentInstances:
		d.Action = ActionScaleUp
	case d.RecommendedInstances < d.CurrentInstances:
		d.Action = ActionScaleDown
	default:
		d.Action = ActionMaintain
	}
}

// InstanceDelta is the signed change the decision asks for.
func (d *ScalingDecision) InstanceDelta() int {
	return d.RecommendedInstances - d.CurrentInstances
}

// ShouldExecute reports whether the executor has work to do.
func (d *ScalingDecision) ShouldExecute() bool {
	return d.Action != ActionMaintain && !d.CooldownActive
}
