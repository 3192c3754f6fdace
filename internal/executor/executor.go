package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tradefleet/fleet-autoscaler/internal/backend"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

var ErrScalingInProgress = errors.New("scaling already in progress for service")

const eventRingCap = 50

// Executor serializes scaling per service, runs pre/post hooks, drives the
// backend, stamps cooldowns on success, and keeps a bounded event ring.
type Executor struct {
	driver       backend.Driver
	cooldown     *decision.CooldownGate
	hooks        *HookSink
	publisher    *events.Publisher
	limits       models.GlobalLimits
	redundancy   int
	scaleTimeout time.Duration

	mu      sync.Mutex
	active  map[string]bool
	history map[string][]*models.ScalingEvent
}

func New(
	driver backend.Driver,
	cooldown *decision.CooldownGate,
	hooks *HookSink,
	publisher *events.Publisher,
	limits models.GlobalLimits,
	redundancyFloor int,
	scaleTimeout time.Duration,
) *Executor {
	if scaleTimeout == 0 {
		scaleTimeout = 300 * time.Second
	}
	return &Executor{
		driver:       driver,
		cooldown:     cooldown,
		hooks:        hooks,
		publisher:    publisher,
		limits:       limits,
		redundancy:   redundancyFloor,
		scaleTimeout: scaleTimeout,
		active:       make(map[string]bool),
		history:      make(map[string][]*models.ScalingEvent),
	}
}

// Execute carries out one decision. Re-entry for a service already scaling
// fails fast with ErrScalingInProgress; nothing is queued.
func (e *Executor) Execute(ctx context.Context, d *models.ScalingDecision, metrics *models.ServiceMetrics) (*models.ScalingEvent, error) {
	if !e.markActive(d.ServiceID) {
		return nil, ErrScalingInProgress
	}
	defer e.markIdle(d.ServiceID)

	return e.execute(ctx, d, metrics)
}

// execute runs the scaling with the active flag already held.
func (e *Executor) execute(ctx context.Context, d *models.ScalingDecision, metrics *models.ServiceMetrics) (*models.ScalingEvent, error) {
	event := models.NewScalingEvent(d, metrics)
	e.publisher.ScalingStarted(d)

	e.hooks.RunPre(ctx, d.ServiceID)

	scaleCtx, cancel := context.WithTimeout(ctx, e.scaleTimeout)
	result, err := e.driver.Scale(scaleCtx, d.ServiceID, d.RecommendedInstances)
	cancel()

	finished := time.Now()
	if err != nil {
		event.Success = false
		event.Error = err.Error()
		event.DurationMs = finished.Sub(d.Timestamp).Milliseconds()
		logger.WithService(d.ServiceID).Errorf("Scaling failed: %v", err)
	} else {
		event.Success = true
		event.PreviousInstances = result.PreviousInstances
		event.NewInstances = result.NewInstances
		event.DurationMs = result.DurationMs
		event.Warnings = result.Warnings
	}

	e.hooks.RunPost(ctx, d.ServiceID)

	if event.Success && d.Action != models.ActionMaintain {
		switch d.Action {
		case models.ActionScaleUp:
			e.cooldown.StampUp(d.ServiceID, finished)
		case models.ActionScaleDown:
			e.cooldown.StampDown(d.ServiceID, finished)
		}
	}

	e.record(event)
	if event.Success {
		e.publisher.ScalingCompleted(event)
	} else {
		e.publisher.ScalingFailed(event)
	}

	if err != nil {
		return event, err
	}
	return event, nil
}

// EmergencyScaleDown synthesizes a critical decision and executes it.
// Cooldowns are bypassed; the global limits and the redundancy floor still
// apply. An emergency outranks only queued decisions: a scaling already on
// the wire runs to completion first, so this waits for the active flag to
// clear instead of failing fast. Targeting the current count is a no-op
// that records a MAINTAIN event.
func (e *Executor) EmergencyScaleDown(ctx context.Context, serviceID string, target int) (*models.ScalingEvent, error) {
	if err := e.acquire(ctx, serviceID); err != nil {
		return nil, err
	}
	defer e.markIdle(serviceID)

	current, err := e.driver.CurrentInstances(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if target < e.redundancy {
		target = e.redundancy
	}
	target = e.limits.Clamp(target)

	d := &models.ScalingDecision{
		Timestamp:            time.Now(),
		ServiceID:            serviceID,
		CurrentInstances:     current,
		RecommendedInstances: target,
		Urgency:              models.UrgencyCritical,
		Confidence:           1.0,
		TriggeredRuleIDs:     []string{"emergency"},
		IsEmergency:          true,
	}
	d.RecomputeAction()
	d.AddReason("emergency scale-down requested")
	e.publisher.DecisionMade(d)

	if d.Action == models.ActionMaintain {
		event := models.NewScalingEvent(d, nil)
		event.Success = true
		e.record(event)
		e.publisher.ScalingCompleted(event)
		logger.WithService(serviceID).Warn("Emergency scale-down is a no-op at current instance count")
		return event, nil
	}

	return e.execute(ctx, d, nil)
}

// RollbackLast restores the previous instance count of the most recent
// successful scaling. With no successful prior event it returns (nil, nil).
func (e *Executor) RollbackLast(ctx context.Context, serviceID string) (*models.ScalingEvent, error) {
	last := e.lastSuccessfulScaling(serviceID)
	if last == nil {
		return nil, nil
	}

	d := &models.ScalingDecision{
		Timestamp:            time.Now(),
		ServiceID:            serviceID,
		CurrentInstances:     last.NewInstances,
		RecommendedInstances: last.PreviousInstances,
		Confidence:           1.0,
		Urgency:              models.UrgencyHigh,
	}
	d.RecomputeAction()
	d.AddReason("rollback of scaling event " + last.EventID)
	e.publisher.DecisionMade(d)

	return e.Execute(ctx, d, nil)
}

// Events returns up to limit most recent events, newest last. limit <= 0
// returns the full ring.
func (e *Executor) Events(serviceID string, limit int) []*models.ScalingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := e.history[serviceID]
	if limit > 0 && len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	out := make([]*models.ScalingEvent, len(ring))
	copy(out, ring)
	return out
}

// ActiveScalings lists services with an execution currently in flight.
func (e *Executor) ActiveScalings() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.active))
	for serviceID := range e.active {
		out = append(out, serviceID)
	}
	return out
}

// acquire takes the active flag, polling until the in-flight scaling (if
// any) releases it or the context expires.
func (e *Executor) acquire(ctx context.Context, serviceID string) error {
	for {
		if e.markActive(serviceID) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (e *Executor) markActive(serviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[serviceID] {
		return false
	}
	e.active[serviceID] = true
	return true
}

func (e *Executor) markIdle(serviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, serviceID)
}

func (e *Executor) record(event *models.ScalingEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := append(e.history[event.ServiceID], event)
	if len(ring) > eventRingCap {
		ring = ring[len(ring)-eventRingCap:]
	}
	e.history[event.ServiceID] = ring
}

func (e *Executor) lastSuccessfulScaling(serviceID string) *models.ScalingEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ring := e.history[serviceID]
	for i := len(ring) - 1; i >= 0; i-- {
		if ring[i].Success && ring[i].Action != models.ActionMaintain {
			return ring[i]
		}
	}
	return nil
}
