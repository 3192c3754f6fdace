package models

import (
	"fmt"
	"time"
)

// ScalingEvent records the execution (or failed execution) of a decision.
type ScalingEvent struct {
	EventID           string          `json:"event_id"`
	ServiceID         string          `json:"service_id"`
	Timestamp         time.Time       `json:"timestamp"`
	Action            ActionKind      `json:"action"`
	PreviousInstances int             `json:"previous_instances"`
	NewInstances      int             `json:"new_instances"`
	Success           bool            `json:"success"`
	DurationMs        int64           `json:"duration_ms"`
	Error             string          `json:"error,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	MetricsSnapshot   *ServiceMetrics `json:"metrics_snapshot,omitempty"`
	RuleSummary       string          `json:"rule_summary,omitempty"`
	TriggeredRuleIDs  []string        `json:"triggered_rule_ids,omitempty"`
	Confidence        float64         `json:"confidence"`
	Urgency           Urgency         `json:"urgency"`
}

// NewScalingEvent seeds an event from the decision about to be executed.
func NewScalingEvent(decision *ScalingDecision, metrics *ServiceMetrics) *ScalingEvent {
	return &ScalingEvent{
		EventID:           NewUUID(),
		ServiceID:         decision.ServiceID,
		Timestamp:         decision.Timestamp,
		Action:            decision.Action,
		PreviousInstances: decision.CurrentInstances,
		NewInstances:      decision.RecommendedInstances,
		MetricsSnapshot:   metrics,
		RuleSummary:       summarizeReasoning(decision),
		TriggeredRuleIDs:  decision.TriggeredRuleIDs,
		Confidence:        decision.Confidence,
		Urgency:           decision.Urgency,
	}
}

// RecordKey is the persisted-state key for this event.
func (e *ScalingEvent) RecordKey() string {
	return fmt.Sprintf("event:%s", e.EventID)
}

// DecisionRecordKey is the persisted-state key for a decision.
func DecisionRecordKey(d *ScalingDecision) string {
	return fmt.Sprintf("decision:%s:%s", d.ServiceID, d.Timestamp.UTC().Format(time.RFC3339Nano))
}

func summarizeReasoning(d *ScalingDecision) string {
	if len(d.Reasoning) == 0 {
		return ""
	}
	return d.Reasoning[0]
}
