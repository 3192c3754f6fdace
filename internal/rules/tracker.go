package rules

import (
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

type conditionKey struct {
	serviceID  string
	metricPath string
}

type conditionState struct {
	met   bool
	since time.Time
}

// ConditionTracker remembers, per (service, metric path), whether a condition's
// threshold has been continuously met and since when. A single blip below
// threshold resets the clock; there is no hysteresis beyond the duration
// requirement.
type ConditionTracker struct {
	mu     sync.Mutex
	states map[conditionKey]*conditionState
}

// ConditionResult is the outcome of one tracker evaluation.
type ConditionResult struct {
	Satisfied bool
	ElapsedS  float64
}

func NewConditionTracker() *ConditionTracker {
	return &ConditionTracker{
		states: make(map[conditionKey]*conditionState),
	}
}

// Evaluate updates the sustained state for one condition and reports whether
// the duration requirement has been earned. The first observation that meets
// the threshold starts the clock but does not yet satisfy the condition.
func (t *ConditionTracker) Evaluate(serviceID string, cond models.ScalingCondition, observed float64, now time.Time) ConditionResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := conditionKey{serviceID: serviceID, metricPath: cond.MetricPath}
	state := t.states[key]

	if !cond.Comparison.Compare(observed, cond.Threshold) {
		t.states[key] = &conditionState{met: false, since: now}
		return ConditionResult{}
	}

	if state == nil || !state.met {
		t.states[key] = &conditionState{met: true, since: now}
		return ConditionResult{}
	}

	elapsed := now.Sub(state.since).Seconds()
	return ConditionResult{
		Satisfied: elapsed >= cond.DurationSeconds,
		ElapsedS:  elapsed,
	}
}

// ResetService drops all transient state for one service. Used when a worker
// restarts after a panic.
func (t *ConditionTracker) ResetService(serviceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.states {
		if key.serviceID == serviceID {
			delete(t.states, key)
		}
	}
}
