package models

// Comparison is the operator applied between an observed metric and a threshold.
type Comparison string

const (
	CompareGT Comparison = "GT"
	CompareLT Comparison = "LT"
	CompareEQ Comparison = "EQ"
	CompareNE Comparison = "NE"
)

// Compare applies the operator to an observed value.
func (c Comparison) Compare(observed, threshold float64) bool {
	switch c {
	case CompareGT:
		return observed > threshold
	case CompareLT:
		return observed < threshold
	case CompareEQ:
		return observed == threshold
	case CompareNE:
		return observed != threshold
	}
	return false
}

// Valid reports whether the operator is one of the supported comparisons.
func (c Comparison) Valid() bool {
	switch c {
	case CompareGT, CompareLT, CompareEQ, CompareNE:
		return true
	}
	return false
}

// ScalingCondition is a single metric trigger. MetricPath is a dotted path into
// ServiceMetrics (cpu.usage, performance.responseTime, instances.current,
// custom.<name>). The condition fires only after it has held continuously for
// DurationSeconds.
type ScalingCondition struct {
	MetricPath      string     `json:"metric_path" mapstructure:"metric_path"`
	Comparison      Comparison `json:"comparison" mapstructure:"comparison"`
	Threshold       float64    `json:"threshold" mapstructure:"threshold"`
	DurationSeconds float64    `json:"duration_seconds" mapstructure:"duration_seconds"`
}

// SizingMode selects how a ScalingAction computes its target instance count.
type SizingMode string

const (
	SizingAbsolute SizingMode = "absolute"
	SizingDelta    SizingMode = "delta"
	SizingPercent  SizingMode = "percent"
)

// ActionKind is the direction a rule wants to move the fleet.
type ActionKind string

const (
	ActionScaleUp   ActionKind = "SCALE_UP"
	ActionScaleDown ActionKind = "SCALE_DOWN"
	ActionMaintain  ActionKind = "MAINTAIN"
)

// ScalingAction describes the mutation a triggered rule requests. Exactly one
// sizing interpretation applies: absolute target, signed delta, or signed
// percent of the current count.
type ScalingAction struct {
	Kind             ActionKind `json:"kind" mapstructure:"kind"`
	Sizing           SizingMode `json:"sizing" mapstructure:"sizing"`
	TargetInstances  int        `json:"target_instances,omitempty" mapstructure:"target_instances"`
	DeltaCount       int        `json:"delta_count,omitempty" mapstructure:"delta_count"`
	Percent          float64    `json:"percent,omitempty" mapstructure:"percent"`
	GracefulShutdown bool       `json:"graceful_shutdown" mapstructure:"graceful_shutdown"`
}

// ScalingRule binds a set of AND-combined conditions to an action for a set of
// target services. Higher priority wins when several rules trigger at once.
type ScalingRule struct {
	ID             string             `json:"id" mapstructure:"id"`
	Name           string             `json:"name" mapstructure:"name"`
	Enabled        bool               `json:"enabled" mapstructure:"enabled"`
	Priority       int                `json:"priority" mapstructure:"priority"`
	Conditions     []ScalingCondition `json:"conditions" mapstructure:"conditions"`
	Action         ScalingAction      `json:"action" mapstructure:"action"`
	TargetServices []string           `json:"target_services" mapstructure:"target_services"`
}

// AppliesTo reports whether the rule targets the given service.
func (r *ScalingRule) AppliesTo(serviceID string) bool {
	for _, id := range r.TargetServices {
		if id == serviceID {
			return true
		}
	}
	return false
}
