package rules

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// ConditionVerdict reports one condition's evaluation inside a rule.
type ConditionVerdict struct {
	MetricPath string  `json:"metric_path"`
	Observed   float64 `json:"observed"`
	Threshold  float64 `json:"threshold"`
	Satisfied  bool    `json:"satisfied"`
	ElapsedS   float64 `json:"elapsed_s"`
	Confidence float64 `json:"confidence"`
}

// RuleVerdict is the result of evaluating a rule against current metrics.
type RuleVerdict struct {
	RuleID     string             `json:"rule_id"`
	Triggered  bool               `json:"triggered"`
	Confidence float64            `json:"confidence"`
	Conditions []ConditionVerdict `json:"conditions"`
}

// Evaluator applies rules to snapshots with AND semantics across conditions.
// A rule that fails structural validation is disabled for the remainder of
// the process lifetime; other rules keep running.
type Evaluator struct {
	tracker *ConditionTracker

	mu       sync.Mutex
	disabled map[string]bool
}

func NewEvaluator(tracker *ConditionTracker) *Evaluator {
	return &Evaluator{
		tracker:  tracker,
		disabled: make(map[string]bool),
	}
}

// Evaluate runs every condition of the rule through the sustained-state
// tracker. All conditions must be satisfied for the rule to trigger.
func (e *Evaluator) Evaluate(rule *models.ScalingRule, metrics *models.ServiceMetrics, now time.Time) (RuleVerdict, error) {
	verdict := RuleVerdict{RuleID: rule.ID}

	if e.isDisabled(rule.ID) {
		return verdict, nil
	}

	if err := validateRule(rule); err != nil {
		e.disable(rule.ID)
		logger.WithField("rule_id", rule.ID).Errorf(
			"Rule disabled for process lifetime, evaluation is malformed: %v", err)
		return verdict, err
	}

	triggered := true
	var confidenceSum float64

	for _, cond := range rule.Conditions {
		observed := ExtractMetric(metrics, cond.MetricPath)
		result := e.tracker.Evaluate(metrics.ServiceID, cond, observed, now)

		cv := ConditionVerdict{
			MetricPath: cond.MetricPath,
			Observed:   observed,
			Threshold:  cond.Threshold,
			Satisfied:  result.Satisfied,
			ElapsedS:   result.ElapsedS,
		}

		if result.Satisfied {
			cv.Confidence = conditionConfidence(observed, cond.Threshold)
			confidenceSum += cv.Confidence
		} else {
			triggered = false
		}

		verdict.Conditions = append(verdict.Conditions, cv)
	}

	verdict.Triggered = triggered
	verdict.Confidence = clamp01(confidenceSum / float64(len(rule.Conditions)))

	return verdict, nil
}

// Disabled reports whether a rule has been disabled due to a past evaluation
// error.
func (e *Evaluator) Disabled(ruleID string) bool {
	return e.isDisabled(ruleID)
}

func (e *Evaluator) isDisabled(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disabled[ruleID]
}

func (e *Evaluator) disable(ruleID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disabled[ruleID] = true
}

func validateRule(rule *models.ScalingRule) error {
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("rule has no conditions")
	}
	for _, cond := range rule.Conditions {
		if cond.MetricPath == "" {
			return fmt.Errorf("condition has empty metric path")
		}
		if !cond.Comparison.Valid() {
			return fmt.Errorf("unsupported comparison %q", cond.Comparison)
		}
	}
	switch rule.Action.Sizing {
	case models.SizingAbsolute, models.SizingDelta, models.SizingPercent:
	default:
		return fmt.Errorf("unsupported sizing mode %q", rule.Action.Sizing)
	}
	return nil
}

// conditionConfidence measures how far past the threshold the observation is,
// normalized by the threshold and capped at 1.
func conditionConfidence(observed, threshold float64) float64 {
	denom := math.Max(threshold, 1)
	return math.Min(math.Abs(observed-threshold)/denom, 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
