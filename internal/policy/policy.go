package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// TradingPolicy adjusts draft decisions for the realities of a trading fleet:
// regulatory redundancy floors, capped scale-down rates, manual-approval
// signalling for large fleets, and intraday load pattern multipliers.
type TradingPolicy struct {
	profile models.TradingProfile
}

func NewTradingPolicy(profile models.TradingProfile) *TradingPolicy {
	return &TradingPolicy{profile: profile}
}

// Apply mutates the decision in a fixed order: redundancy floor, scale-down
// rate cap, approval annotation, pattern multiplier. Each stage that changes
// the recommendation appends its own reasoning line.
func (p *TradingPolicy) Apply(decision *models.ScalingDecision, now time.Time) {
	p.applyRedundancyFloor(decision)
	p.applyScaleDownRateCap(decision)
	p.annotateApproval(decision)
	p.applyPatternMultiplier(decision, now)
}

// RedundancyFloor exposes the compliance minimum so emergency paths can honor
// it without running the full policy chain.
func (p *TradingPolicy) RedundancyFloor() int {
	return p.profile.Compliance.MinInstancesForRedundancy
}

func (p *TradingPolicy) applyRedundancyFloor(d *models.ScalingDecision) {
	floor := p.profile.Compliance.MinInstancesForRedundancy
	if floor <= 0 || d.RecommendedInstances >= floor {
		return
	}
	d.RecommendedInstances = floor
	d.AddReason(fmt.Sprintf("raised to redundancy floor of %d instances", floor))
}

func (p *TradingPolicy) applyScaleDownRateCap(d *models.ScalingDecision) {
	if d.Action != models.ActionScaleDown {
		return
	}
	pct := p.profile.Compliance.MaxScaleDownRatePct
	if pct <= 0 {
		return
	}
	maxStep := int(math.Floor(float64(d.CurrentInstances) * pct / 100))
	if d.CurrentInstances-d.RecommendedInstances <= maxStep {
		return
	}
	d.RecommendedInstances = d.CurrentInstances - maxStep
	d.AddReason(fmt.Sprintf("scale-down capped at %.0f%% of fleet (%d instances per step)", pct, maxStep))
}

func (p *TradingPolicy) annotateApproval(d *models.ScalingDecision) {
	threshold := p.profile.Compliance.LargeScaleApprovalThreshold
	if threshold <= 0 || d.RecommendedInstances < threshold {
		return
	}
	d.ApprovalRequired = true
	d.AddReason(fmt.Sprintf("fleet of %d requires manual approval (threshold %d)",
		d.RecommendedInstances, threshold))
}

func (p *TradingPolicy) applyPatternMultiplier(d *models.ScalingDecision, now time.Time) {
	inSession, err := p.profile.MarketHours.Contains(now)
	if err != nil {
		logger.WithService(d.ServiceID).Warnf("Skipping pattern multiplier, bad market hours: %v", err)
		return
	}
	if !inSession {
		return
	}

	name, multiplier, ok := matchPattern(p.profile.Patterns, now)
	if !ok || multiplier == 1 {
		return
	}

	adjusted := int(math.Ceil(float64(d.RecommendedInstances) * multiplier))
	if adjusted == d.RecommendedInstances {
		return
	}
	d.RecommendedInstances = adjusted
	d.AddReason(fmt.Sprintf("%s pattern multiplier %.2f applied", name, multiplier))
}

// matchPattern picks the first matching pattern window in strict precedence
// order; later patterns are ignored once one matches.
func matchPattern(patterns models.TradingPatterns, now time.Time) (string, float64, bool) {
	switch {
	case isQuarterEnd(now):
		return "quarter_end", patterns.QuarterEnd.Multiplier, patterns.QuarterEnd.Multiplier > 0
	case isMonthEnd(now):
		return "month_end", patterns.MonthEnd.Multiplier, patterns.MonthEnd.Multiplier > 0
	case inClockWindow(now, 9*60, 9*60+30):
		return "opening_bell", patterns.OpeningBell.Multiplier, patterns.OpeningBell.Multiplier > 0
	case inClockWindow(now, 15*60+30, 16*60):
		return "closing_bell", patterns.ClosingBell.Multiplier, patterns.ClosingBell.Multiplier > 0
	case inClockWindow(now, 12*60, 13*60):
		return "lunch", patterns.Lunch.Multiplier, patterns.Lunch.Multiplier > 0
	}
	return "", 0, false
}

func inClockWindow(now time.Time, startMin, endMin int) bool {
	m := now.Hour()*60 + now.Minute()
	return m >= startMin && m < endMin
}

func isMonthEnd(now time.Time) bool {
	return now.Day() >= 25
}

func isQuarterEnd(now time.Time) bool {
	if !isMonthEnd(now) {
		return false
	}
	switch now.Month() {
	case time.March, time.June, time.September, time.December:
		return true
	}
	return false
}
