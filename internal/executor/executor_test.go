package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/backend"
	"github.com/tradefleet/fleet-autoscaler/internal/decision"
	"github.com/tradefleet/fleet-autoscaler/internal/events"
	"github.com/tradefleet/fleet-autoscaler/internal/executor"
	"github.com/tradefleet/fleet-autoscaler/internal/metrics"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

type fixture struct {
	sim  *backend.SimulatorDriver
	gate *decision.CooldownGate
	bus  *events.EventBus
	exec *executor.Executor
}

func newFixture(t *testing.T, provisionTime time.Duration, redundancy int) *fixture {
	t.Helper()

	sim := backend.NewSimulatorDriver(backend.SimulatorConfig{
		ProvisionTime: provisionTime,
		DrainTime:     5 * time.Millisecond,
		PollInterval:  2 * time.Millisecond,
	})
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	bus := events.NewEventBus(100)
	t.Cleanup(bus.Close)
	pub := events.NewPublisher(bus)
	hooks := executor.NewHookSink(nil, nil, time.Second, pub)

	limits := models.GlobalLimits{MinInstances: 1, MaxInstances: 50}
	exec := executor.New(sim, gate, hooks, pub, limits, redundancy, 5*time.Second)

	return &fixture{sim: sim, gate: gate, bus: bus, exec: exec}
}

func upDecision(serviceID string, current, target int) *models.ScalingDecision {
	d := &models.ScalingDecision{
		Timestamp:            time.Now(),
		ServiceID:            serviceID,
		CurrentInstances:     current,
		RecommendedInstances: target,
		Confidence:           0.8,
		Urgency:              models.UrgencyHigh,
	}
	d.RecomputeAction()
	return d
}

func TestExecute_SuccessStampsCooldown(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 4)

	event, err := f.exec.Execute(context.Background(), upDecision("svc-a", 4, 6), nil)
	require.NoError(t, err)
	assert.True(t, event.Success)
	assert.Equal(t, 4, event.PreviousInstances)
	assert.Equal(t, 6, event.NewInstances)
	assert.Equal(t, models.ActionScaleUp, event.Action)

	assert.True(t, f.gate.InCooldown("svc-a", time.Now()))

	ring := f.exec.Events("svc-a", 0)
	require.Len(t, ring, 1)
	assert.Equal(t, event.EventID, ring[0].EventID)
}

func TestExecute_FailureDoesNotStampCooldown(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)
	// Service never initialized: driver reports not found.

	event, err := f.exec.Execute(context.Background(), upDecision("ghost", 2, 4), nil)
	require.Error(t, err)
	require.NotNil(t, event)
	assert.False(t, event.Success)
	assert.NotEmpty(t, event.Error)

	assert.False(t, f.gate.InCooldown("ghost", time.Now()))
}

func TestExecute_RefusesReentry(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 2)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		f.exec.Execute(context.Background(), upDecision("svc-a", 2, 4), nil)
	}()

	<-started
	require.Eventually(t, func() bool {
		return len(f.exec.ActiveScalings()) == 1
	}, time.Second, time.Millisecond)

	_, err := f.exec.Execute(context.Background(), upDecision("svc-a", 2, 5), nil)
	assert.ErrorIs(t, err, executor.ErrScalingInProgress)
	<-done
}

func TestExecute_LifecycleEvents(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 2)

	startedCh := f.bus.Subscribe(models.EventTypeScalingStarted)
	completedCh := f.bus.Subscribe(models.EventTypeScalingCompleted)

	_, err := f.exec.Execute(context.Background(), upDecision("svc-a", 2, 3), nil)
	require.NoError(t, err)

	select {
	case <-startedCh:
	case <-time.After(time.Second):
		t.Fatal("missing scaling_started event")
	}
	select {
	case <-completedCh:
	case <-time.After(time.Second):
		t.Fatal("missing scaling_completed event")
	}
}

func TestHooks_FailureNeverAbortsScaling(t *testing.T) {
	var mu sync.Mutex
	var phases []string

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Phase string `json:"phase"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		phases = append(phases, payload.Phase)
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	sim := backend.NewSimulatorDriver(backend.SimulatorConfig{
		ProvisionTime: 5 * time.Millisecond,
		PollInterval:  2 * time.Millisecond,
	})
	sim.InitializeService("svc-hooks", 2)
	gate := decision.NewCooldownGate(time.Minute, time.Minute)
	bus := events.NewEventBus(100)
	defer bus.Close()
	pub := events.NewPublisher(bus)
	hookFailures := bus.Subscribe(models.EventTypeHookFailed)

	hooks := executor.NewHookSink([]string{failing.URL}, []string{failing.URL}, time.Second, pub)
	exec := executor.New(sim, gate, hooks, pub,
		models.GlobalLimits{MinInstances: 1, MaxInstances: 50}, 0, 5*time.Second)

	event, err := exec.Execute(context.Background(), upDecision("svc-hooks", 2, 3), nil)
	require.NoError(t, err)
	assert.True(t, event.Success)

	mu.Lock()
	assert.Equal(t, []string{"pre", "post"}, phases)
	mu.Unlock()

	for i := 0; i < 2; i++ {
		select {
		case <-hookFailures:
		case <-time.After(time.Second):
			t.Fatal("missing hook_failed event")
		}
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HookFailuresTotal.WithLabelValues("svc-hooks", "pre")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HookFailuresTotal.WithLabelValues("svc-hooks", "post")))
}

func TestEmergencyScaleDown_BypassesCooldownHonorsFloor(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 3)
	f.sim.InitializeService("svc-a", 8)

	// An open cooldown window must not block the emergency path.
	f.gate.StampUp("svc-a", time.Now())

	event, err := f.exec.EmergencyScaleDown(context.Background(), "svc-a", 1)
	require.NoError(t, err)
	assert.True(t, event.Success)
	assert.Equal(t, 8, event.PreviousInstances)
	assert.Equal(t, 3, event.NewInstances, "redundancy floor wins over the requested target")
	assert.Equal(t, models.ActionScaleDown, event.Action)
	assert.Equal(t, []string{"emergency"}, event.TriggeredRuleIDs)
	assert.Equal(t, models.UrgencyCritical, event.Urgency)
	assert.Equal(t, 1.0, event.Confidence)
}

func TestEmergencyScaleDown_WaitsForInFlightScaling(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.exec.Execute(context.Background(), upDecision("svc-a", 2, 4), nil)
	}()

	require.Eventually(t, func() bool {
		return len(f.exec.ActiveScalings()) == 1
	}, time.Second, time.Millisecond)

	// The emergency must queue behind the scale-up on the wire, not bounce.
	event, err := f.exec.EmergencyScaleDown(context.Background(), "svc-a", 1)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.Success)
	assert.Equal(t, 4, event.PreviousInstances, "emergency sees the count after the in-flight scale-up")
	assert.Equal(t, 1, event.NewInstances)
	<-done
}

func TestEmergencyScaleDown_CancelledWhileWaiting(t *testing.T) {
	f := newFixture(t, 200*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.exec.Execute(context.Background(), upDecision("svc-a", 2, 4), nil)
	}()

	require.Eventually(t, func() bool {
		return len(f.exec.ActiveScalings()) == 1
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	event, err := f.exec.EmergencyScaleDown(ctx, "svc-a", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, event)
	<-done
}

func TestEmergencyScaleDown_NoopAtCurrentCount(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 4)

	event, err := f.exec.EmergencyScaleDown(context.Background(), "svc-a", 4)
	require.NoError(t, err)
	assert.True(t, event.Success)
	assert.Equal(t, models.ActionMaintain, event.Action)

	n, err := f.sim.CurrentInstances(context.Background(), "svc-a")
	require.NoError(t, err)
	assert.Equal(t, 4, n, "no backend call for a no-op")
}

func TestRollbackLast_RestoresPreviousCount(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)
	f.sim.InitializeService("svc-b", 3)

	_, err := f.exec.Execute(context.Background(), upDecision("svc-b", 3, 7), nil)
	require.NoError(t, err)

	event, err := f.exec.RollbackLast(context.Background(), "svc-b")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.True(t, event.Success)
	assert.Equal(t, 7, event.PreviousInstances)
	assert.Equal(t, 3, event.NewInstances)
	assert.Equal(t, models.ActionScaleDown, event.Action)
}

func TestRollbackLast_AbsentWithoutError(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond, 0)

	event, err := f.exec.RollbackLast(context.Background(), "svc-b")
	assert.NoError(t, err)
	assert.Nil(t, event)
}

func TestEvents_RingCap(t *testing.T) {
	f := newFixture(t, 2*time.Millisecond, 0)
	f.sim.InitializeService("svc-a", 1)

	target := 2
	for i := 0; i < 55; i++ {
		d := upDecision("svc-a", target-1, target)
		_, err := f.exec.Execute(context.Background(), d, nil)
		require.NoError(t, err)
		if target == 2 {
			target = 1
		} else {
			target = 2
		}
	}

	assert.Len(t, f.exec.Events("svc-a", 0), 50)
	assert.Len(t, f.exec.Events("svc-a", 10), 10)
}
