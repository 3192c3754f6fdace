package decision_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/policy"
	"github.com/tradefleet/fleet-autoscaler/internal/rules"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func snapshot(serviceID string, cpu float64, current int, at time.Time) *models.ServiceMetrics {
	return &models.ServiceMetrics{
		ServiceID:  serviceID,
		CapturedAt: at,
		Resources:  models.ResourceMetrics{CPUUsage: cpu, MemoryUsage: 40},
		Instances:  models.InstanceCounts{Current: current, Healthy: current},
	}
}

func cpuRule() *models.ScalingRule {
	return &models.ScalingRule{
		ID:       "cpu-high",
		Name:     "sustained high cpu",
		Enabled:  true,
		Priority: 10,
		Conditions: []models.ScalingCondition{
			{MetricPath: "cpu.usage", Comparison: models.CompareGT, Threshold: 80, DurationSeconds: 60},
		},
		Action:         models.ScalingAction{Kind: models.ActionScaleUp, Sizing: models.SizingDelta, DeltaCount: 2},
		TargetServices: []string{"svc-a"},
	}
}

func newEngine(ruleSet []*models.ScalingRule, limits models.GlobalLimits) *decision.Engine {
	tracker := rules.NewConditionTracker()
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	// Empty profile: no floors, caps, or pattern multipliers interfere.
	pol := policy.NewTradingPolicy(models.TradingProfile{})
	return decision.NewEngine(rules.NewEvaluator(tracker), pol, gate, limits, ruleSet, true)
}

func TestDecide_SustainedBreachScalesUp(t *testing.T) {
	engine := newEngine([]*models.ScalingRule{cpuRule()}, models.GlobalLimits{MinInstances: 2, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	d := engine.Decide("svc-a", snapshot("svc-a", 85, 4, t0), t0)
	assert.Equal(t, models.ActionMaintain, d.Action, "duration not yet earned")

	d = engine.Decide("svc-a", snapshot("svc-a", 85, 4, t0.Add(30*time.Second)), t0.Add(30*time.Second))
	assert.Equal(t, models.ActionMaintain, d.Action)

	d = engine.Decide("svc-a", snapshot("svc-a", 85, 4, t0.Add(60*time.Second)), t0.Add(60*time.Second))
	assert.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, 6, d.RecommendedInstances)
	assert.Equal(t, models.UrgencyLow, d.Urgency)
	assert.InDelta(t, 0.0625, d.Confidence, 1e-9)
	assert.Equal(t, []string{"cpu-high"}, d.TriggeredRuleIDs)
	assert.Equal(t, 85.0, d.MetricsUsed["cpu.usage"])
}

func TestDecide_CooldownSuppressesSecondScaleUp(t *testing.T) {
	engine := newEngine([]*models.ScalingRule{cpuRule()}, models.GlobalLimits{MinInstances: 2, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	engine.Decide("svc-a", snapshot("svc-a", 85, 4, t0), t0)
	engine.Decide("svc-a", snapshot("svc-a", 85, 4, t0.Add(60*time.Second)), t0.Add(60*time.Second))

	// Executor stamps on completion; simulate the successful scale-up.
	engine.Cooldown().StampUp("svc-a", t0.Add(60*time.Second))

	d := engine.Decide("svc-a", snapshot("svc-a", 95, 6, t0.Add(90*time.Second)), t0.Add(90*time.Second))
	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.True(t, d.CooldownActive)
	require.NotEmpty(t, d.Reasoning)
	assert.Contains(t, d.Reasoning[0], "cooldown period")
}

func TestDecide_NoRulesTriggered(t *testing.T) {
	engine := newEngine([]*models.ScalingRule{cpuRule()}, models.GlobalLimits{MinInstances: 2, MaxInstances: 20})
	now := time.Now()

	d := engine.Decide("svc-a", snapshot("svc-a", 40, 4, now), now)
	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Contains(t, d.Reasoning, "no scaling rules triggered")
}

func TestDecide_KillSwitch(t *testing.T) {
	engine := newEngine([]*models.ScalingRule{cpuRule()}, models.GlobalLimits{MinInstances: 2, MaxInstances: 20})
	engine.SetEnabled(false)
	now := time.Now()

	d := engine.Decide("svc-a", snapshot("svc-a", 99, 4, now), now)
	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Contains(t, d.Reasoning, "scaling disabled")
}

func TestDecide_HighestPriorityWins(t *testing.T) {
	low := cpuRule()
	low.ID = "cpu-low-prio"
	low.Priority = 1
	low.Conditions[0].DurationSeconds = 0
	low.Action = models.ScalingAction{Kind: models.ActionScaleUp, Sizing: models.SizingDelta, DeltaCount: 1}

	high := cpuRule()
	high.ID = "cpu-high-prio"
	high.Priority = 20
	high.Conditions[0].DurationSeconds = 0
	high.Action = models.ScalingAction{Kind: models.ActionScaleUp, Sizing: models.SizingDelta, DeltaCount: 4}

	engine := newEngine([]*models.ScalingRule{low, high}, models.GlobalLimits{MinInstances: 1, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	engine.Decide("svc-a", snapshot("svc-a", 90, 4, t0), t0)
	d := engine.Decide("svc-a", snapshot("svc-a", 90, 4, t0.Add(time.Second)), t0.Add(time.Second))

	require.Equal(t, models.ActionScaleUp, d.Action)
	assert.Equal(t, []string{"cpu-high-prio"}, d.TriggeredRuleIDs)
	assert.Equal(t, 8, d.RecommendedInstances)
}

func TestDecide_RecommendationAlwaysWithinLimits(t *testing.T) {
	rule := cpuRule()
	rule.Conditions[0].DurationSeconds = 0
	rule.Action = models.ScalingAction{Kind: models.ActionScaleUp, Sizing: models.SizingAbsolute, TargetInstances: 500}

	engine := newEngine([]*models.ScalingRule{rule}, models.GlobalLimits{MinInstances: 2, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	engine.Decide("svc-a", snapshot("svc-a", 90, 4, t0), t0)
	d := engine.Decide("svc-a", snapshot("svc-a", 90, 4, t0.Add(time.Second)), t0.Add(time.Second))

	assert.Equal(t, 20, d.RecommendedInstances)
	assert.Equal(t, models.ActionScaleUp, d.Action)
}

func TestDecide_ClampFlipsActionToMaintain(t *testing.T) {
	rule := cpuRule()
	rule.Conditions[0].DurationSeconds = 0
	rule.Conditions[0].Comparison = models.CompareLT
	rule.Conditions[0].Threshold = 30
	rule.Action = models.ScalingAction{Kind: models.ActionScaleDown, Sizing: models.SizingAbsolute, TargetInstances: 1}

	engine := newEngine([]*models.ScalingRule{rule}, models.GlobalLimits{MinInstances: 4, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	engine.Decide("svc-a", snapshot("svc-a", 10, 4, t0), t0)
	d := engine.Decide("svc-a", snapshot("svc-a", 10, 4, t0.Add(time.Second)), t0.Add(time.Second))

	// Clamped back to the floor, which equals current: action recomputes.
	assert.Equal(t, 4, d.RecommendedInstances)
	assert.Equal(t, models.ActionMaintain, d.Action)
}

func TestDecide_PercentSizing(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		current int
		want    int
	}{
		{"up 50 pct of 4", 50, 4, 6},
		{"up 25 pct of 10 rounds step up", 25, 10, 13},
		{"down 30 pct of 10", -30, 10, 7},
		{"down 10 pct of 4 steps at least one", -10, 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := models.ActionScaleUp
			if tt.percent < 0 {
				kind = models.ActionScaleDown
			}
			rule := cpuRule()
			rule.Conditions[0].DurationSeconds = 0
			rule.Action = models.ScalingAction{Kind: kind, Sizing: models.SizingPercent, Percent: tt.percent}

			engine := newEngine([]*models.ScalingRule{rule}, models.GlobalLimits{MinInstances: 1, MaxInstances: 50})
			t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

			engine.Decide("svc-a", snapshot("svc-a", 90, tt.current, t0), t0)
			d := engine.Decide("svc-a", snapshot("svc-a", 90, tt.current, t0.Add(time.Second)), t0.Add(time.Second))

			assert.Equal(t, tt.want, d.RecommendedInstances)
		})
	}
}

func TestDecide_RuleScopedToOtherService(t *testing.T) {
	engine := newEngine([]*models.ScalingRule{cpuRule()}, models.GlobalLimits{MinInstances: 1, MaxInstances: 20})
	now := time.Now()

	d := engine.Decide("svc-b", snapshot("svc-b", 99, 4, now), now)
	assert.Equal(t, models.ActionMaintain, d.Action)
	assert.Contains(t, d.Reasoning, "no scaling rules triggered")
}

func TestHistory_RingCapAndOrder(t *testing.T) {
	engine := newEngine(nil, models.GlobalLimits{MinInstances: 1, MaxInstances: 20})
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 120; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		engine.Decide("svc-a", snapshot("svc-a", 40, 4, at), at)
	}

	full := engine.History("svc-a", 0)
	require.Len(t, full, 100)
	assert.True(t, full[0].Timestamp.Before(full[99].Timestamp), "oldest first, newest last")
	assert.Equal(t, t0.Add(119*time.Second), full[99].Timestamp)

	limited := engine.History("svc-a", 5)
	require.Len(t, limited, 5)
	assert.Equal(t, t0.Add(119*time.Second), limited[4].Timestamp)
}
