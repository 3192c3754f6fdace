package policy_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradefleet/fleet-autoscaler/internal/policy"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func testProfile() models.TradingProfile {
	return models.TradingProfile{
		MarketHours: models.MarketHours{Start: "09:00", End: "16:00"},
		Patterns: models.TradingPatterns{
			OpeningBell: models.TradingPattern{Multiplier: 1.5},
			ClosingBell: models.TradingPattern{Multiplier: 1.4},
			Lunch:       models.TradingPattern{Multiplier: 0.7},
			MonthEnd:    models.TradingPattern{Multiplier: 1.3},
			QuarterEnd:  models.TradingPattern{Multiplier: 1.6},
		},
		Compliance: models.ComplianceRules{
			MinInstancesForRedundancy:   3,
			MaxScaleDownRatePct:         50,
			LargeScaleApprovalThreshold: 20,
		},
	}
}

func draft(current, recommended int, action models.ActionKind) *models.ScalingDecision {
	return &models.ScalingDecision{
		ServiceID:            "svc-a",
		CurrentInstances:     current,
		RecommendedInstances: recommended,
		Action:               action,
	}
}

// Mid-month Tuesday, well clear of pattern windows.
func at(hh, mm int) time.Time {
	return time.Date(2025, 2, 11, hh, mm, 0, 0, time.UTC)
}

func hasReasonContaining(d *models.ScalingDecision, substr string) bool {
	for _, r := range d.Reasoning {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestApply_OpeningBellAfterRateCap(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(10, 6, models.ActionScaleDown)

	p.Apply(d, at(9, 15))

	// 50% cap allows a step of 5, so the recommendation of 6 stands;
	// the opening-bell multiplier then lifts it to ceil(6*1.5)=9.
	assert.Equal(t, 9, d.RecommendedInstances)
	assert.True(t, hasReasonContaining(d, "opening_bell"))
}

func TestApply_RedundancyFloorOverridesAggressiveDown(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(6, 1, models.ActionScaleDown)

	p.Apply(d, at(11, 0))

	assert.Equal(t, 3, d.RecommendedInstances)
	assert.True(t, hasReasonContaining(d, "redundancy floor"))
}

func TestApply_ScaleDownRateCap(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(10, 2, models.ActionScaleDown)

	p.Apply(d, at(11, 0))

	// floor(10*50/100)=5, so the deepest allowed target is 5.
	assert.Equal(t, 5, d.RecommendedInstances)
	assert.True(t, hasReasonContaining(d, "capped"))
}

func TestApply_RateCapIgnoredForScaleUp(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(4, 12, models.ActionScaleUp)

	p.Apply(d, at(11, 0))

	assert.Equal(t, 12, d.RecommendedInstances)
}

func TestApply_ApprovalAnnotationIsAdvisory(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(18, 22, models.ActionScaleUp)

	p.Apply(d, at(11, 0))

	assert.True(t, d.ApprovalRequired)
	assert.True(t, hasReasonContaining(d, "manual approval"))
	assert.Equal(t, 22, d.RecommendedInstances, "approval gate never edits the target")
}

func TestApply_NoMultiplierOutsideMarketHours(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	d := draft(4, 6, models.ActionScaleUp)

	p.Apply(d, at(19, 15))

	assert.Equal(t, 6, d.RecommendedInstances)
}

func TestApply_PatternPrecedence(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())

	tests := []struct {
		name string
		now  time.Time
		want int // from recommended=10
	}{
		{"quarter end beats opening bell", time.Date(2025, 3, 28, 9, 15, 0, 0, time.UTC), 16},
		{"month end beats lunch", time.Date(2025, 2, 26, 12, 30, 0, 0, time.UTC), 13},
		{"lunch taper", time.Date(2025, 2, 11, 12, 30, 0, 0, time.UTC), 7},
		{"closing bell", time.Date(2025, 2, 11, 15, 45, 0, 0, time.UTC), 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft(10, 10, models.ActionScaleUp)
			p.Apply(d, tt.now)
			assert.Equal(t, tt.want, d.RecommendedInstances)
		})
	}
}

func TestRedundancyFloor(t *testing.T) {
	p := policy.NewTradingPolicy(testProfile())
	assert.Equal(t, 3, p.RedundancyFloor())
}
