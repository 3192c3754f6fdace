package models

import (
	"fmt"
	"time"
)

// MarketHours is the regular trading session window in exchange-local time,
// expressed as HH:MM strings.
type MarketHours struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// Contains reports whether the local clock time of now falls inside the
// session window, inclusive of the start minute and exclusive of the end.
func (h MarketHours) Contains(now time.Time) (bool, error) {
	start, err := parseClock(h.Start)
	if err != nil {
		return false, fmt.Errorf("invalid market open %q: %w", h.Start, err)
	}
	end, err := parseClock(h.End)
	if err != nil {
		return false, fmt.Errorf("invalid market close %q: %w", h.End, err)
	}
	m := now.Hour()*60 + now.Minute()
	return m >= start && m < end, nil
}

func parseClock(s string) (int, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, err
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return hh*60 + mm, nil
}

// TradingPattern is a named calendar/clock window with a load multiplier.
type TradingPattern struct {
	Multiplier float64 `json:"multiplier" mapstructure:"multiplier"`
}

// TradingPatterns carries the recognized pattern multipliers. Matching windows
// are fixed: opening bell 09:00-09:30, closing bell 15:30-16:00, lunch
// 12:00-13:00, month end day>=25, quarter end month in {3,6,9,12} at month end.
type TradingPatterns struct {
	OpeningBell TradingPattern `json:"opening_bell" mapstructure:"opening_bell"`
	ClosingBell TradingPattern `json:"closing_bell" mapstructure:"closing_bell"`
	Lunch       TradingPattern `json:"lunch" mapstructure:"lunch"`
	MonthEnd    TradingPattern `json:"month_end" mapstructure:"month_end"`
	QuarterEnd  TradingPattern `json:"quarter_end" mapstructure:"quarter_end"`
}

// ComplianceRules are the regulatory floors and caps applied to every decision.
type ComplianceRules struct {
	MinInstancesForRedundancy   int     `json:"min_instances_for_redundancy" mapstructure:"min_instances_for_redundancy"`
	MaxScaleDownRatePct         float64 `json:"max_scale_down_rate_pct" mapstructure:"max_scale_down_rate_pct"`
	LargeScaleApprovalThreshold int     `json:"large_scale_approval_threshold" mapstructure:"large_scale_approval_threshold"`
}

// TradingProfile is the financial-domain configuration applied by the policy
// stage after rule evaluation.
type TradingProfile struct {
	MarketHours MarketHours     `json:"market_hours" mapstructure:"market_hours"`
	Patterns    TradingPatterns `json:"patterns" mapstructure:"patterns"`
	Compliance  ComplianceRules `json:"compliance" mapstructure:"compliance"`
}

// GlobalLimits bound every recommendation and gate repeat scalings.
type GlobalLimits struct {
	MinInstances      int           `json:"min_instances" mapstructure:"min_instances"`
	MaxInstances      int           `json:"max_instances" mapstructure:"max_instances"`
	ScaleUpCooldown   time.Duration `json:"scale_up_cooldown" mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `json:"scale_down_cooldown" mapstructure:"scale_down_cooldown"`
}

// Validate enforces the structural invariants on the limits.
func (l GlobalLimits) Validate() error {
	if l.MinInstances < 0 {
		return fmt.Errorf("min_instances must be >= 0")
	}
	if l.MinInstances > l.MaxInstances {
		return fmt.Errorf("min_instances (%d) must not exceed max_instances (%d)",
			l.MinInstances, l.MaxInstances)
	}
	return nil
}

// Clamp bounds a recommendation to [MinInstances, MaxInstances].
func (l GlobalLimits) Clamp(instances int) int {
	if instances < l.MinInstances {
		return l.MinInstances
	}
	if instances > l.MaxInstances {
		return l.MaxInstances
	}
	return instances
}
