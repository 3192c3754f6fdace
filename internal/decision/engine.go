package decision

import (
	"math"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/internal/policy"
	"github.com/tradefleet/fleet-autoscaler/internal/rules"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

const historyCap = 100

// Engine turns a metrics snapshot into a ScalingDecision: cooldown gate,
// rule evaluation, action sizing, trading policy, then the limit clamp.
// Each service keeps a bounded ring of past decisions for the predictor
// and the API.
type Engine struct {
	evaluator *rules.Evaluator
	policy    *policy.TradingPolicy
	cooldown  *CooldownGate
	limits    models.GlobalLimits

	mu      sync.RWMutex
	rules   []*models.ScalingRule
	enabled bool
	history map[string][]*models.ScalingDecision
}

func NewEngine(
	evaluator *rules.Evaluator,
	tradingPolicy *policy.TradingPolicy,
	cooldown *CooldownGate,
	limits models.GlobalLimits,
	scalingRules []*models.ScalingRule,
	enabled bool,
) *Engine {
	return &Engine{
		evaluator: evaluator,
		policy:    tradingPolicy,
		cooldown:  cooldown,
		limits:    limits,
		rules:     scalingRules,
		enabled:   enabled,
		history:   make(map[string][]*models.ScalingDecision),
	}
}

// Decide produces the decision for one service at one instant. It always
// returns a decision; error paths upstream (stale metrics) are handled by
// the control loop, not here.
func (e *Engine) Decide(serviceID string, metrics *models.ServiceMetrics, now time.Time) *models.ScalingDecision {
	d := &models.ScalingDecision{
		Timestamp:            now,
		ServiceID:            serviceID,
		CurrentInstances:     metrics.Instances.Current,
		RecommendedInstances: metrics.Instances.Current,
		Action:               models.ActionMaintain,
		Urgency:              models.UrgencyLow,
	}

	if !e.Enabled() {
		d.AddReason("scaling disabled")
		e.record(d)
		return d
	}

	if e.cooldown.InCooldown(serviceID, now) {
		d.CooldownActive = true
		d.AddReason("service in cooldown period")
		logger.WithService(serviceID).Debug("Decision: maintain (cooldown active)")
		e.record(d)
		return d
	}

	winner, verdict := e.pickRule(serviceID, metrics, now)
	if winner == nil {
		d.AddReason("no scaling rules triggered")
		e.record(d)
		return d
	}

	d.TriggeredRuleIDs = []string{winner.ID}
	d.Confidence = verdict.Confidence
	d.Urgency = models.UrgencyFromConfidence(verdict.Confidence)
	d.MetricsUsed = metricsUsed(verdict)
	d.RecommendedInstances = sizeAction(winner.Action, metrics.Instances.Current)
	d.Action = winner.Action.Kind
	d.AddReason("rule " + winner.Name + " triggered")

	e.policy.Apply(d, now)

	d.RecommendedInstances = e.limits.Clamp(d.RecommendedInstances)
	d.RecomputeAction()

	logger.WithService(serviceID).Debugf(
		"Decision: %s %d -> %d (confidence %.2f)",
		d.Action, d.CurrentInstances, d.RecommendedInstances, d.Confidence)

	e.record(d)
	return d
}

// pickRule evaluates every applicable rule and returns the triggered rule
// with the highest priority, ties broken by first appearance.
func (e *Engine) pickRule(serviceID string, metrics *models.ServiceMetrics, now time.Time) (*models.ScalingRule, rules.RuleVerdict) {
	e.mu.RLock()
	ruleSet := e.rules
	e.mu.RUnlock()

	var winner *models.ScalingRule
	var winning rules.RuleVerdict

	for _, rule := range ruleSet {
		if !rule.Enabled || !rule.AppliesTo(serviceID) {
			continue
		}
		verdict, err := e.evaluator.Evaluate(rule, metrics, now)
		if err != nil {
			continue
		}
		if !verdict.Triggered {
			continue
		}
		if winner == nil || rule.Priority > winner.Priority {
			winner = rule
			winning = verdict
		}
	}
	return winner, winning
}

// sizeAction computes the draft recommendation from the action's sizing mode.
// Percent sizing is a relative step of ceil(|current*pct/100|) applied in the
// sign direction of the percentage.
func sizeAction(action models.ScalingAction, current int) int {
	switch action.Sizing {
	case models.SizingAbsolute:
		return action.TargetInstances
	case models.SizingDelta:
		return current + action.DeltaCount
	case models.SizingPercent:
		step := int(math.Ceil(math.Abs(float64(current) * action.Percent / 100)))
		if action.Percent < 0 {
			return current - step
		}
		return current + step
	}
	return current
}

func metricsUsed(verdict rules.RuleVerdict) map[string]float64 {
	if len(verdict.Conditions) == 0 {
		return nil
	}
	used := make(map[string]float64, len(verdict.Conditions))
	for _, cv := range verdict.Conditions {
		used[cv.MetricPath] = cv.Observed
	}
	return used
}

func (e *Engine) record(d *models.ScalingDecision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := append(e.history[d.ServiceID], d)
	if len(ring) > historyCap {
		ring = ring[len(ring)-historyCap:]
	}
	e.history[d.ServiceID] = ring
}

// History returns up to limit most recent decisions, newest last. limit <= 0
// returns the full ring.
func (e *Engine) History(serviceID string, limit int) []*models.ScalingDecision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ring := e.history[serviceID]
	if limit > 0 && len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	out := make([]*models.ScalingDecision, len(ring))
	copy(out, ring)
	return out
}

// Enabled reports the kill switch state.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled flips the kill switch; disabled means every decision is MAINTAIN.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// SetRules replaces the active rule set.
func (e *Engine) SetRules(ruleSet []*models.ScalingRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = ruleSet
}

// Rules returns the active rule set.
func (e *Engine) Rules() []*models.ScalingRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*models.ScalingRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Limits exposes the configured global bounds.
func (e *Engine) Limits() models.GlobalLimits {
	return e.limits
}

// Cooldown exposes the shared gate so the executor can stamp completions.
func (e *Engine) Cooldown() *CooldownGate {
	return e.cooldown
}
