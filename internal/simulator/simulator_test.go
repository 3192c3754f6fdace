package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	// 2025-02-11 is a Tuesday.
	return time.Date(2025, 2, 11, hour, minute, 0, 0, time.UTC)
}

func TestTradingDayPattern_SessionPhases(t *testing.T) {
	p := &TradingDayPattern{}

	tests := []struct {
		name string
		when time.Time
		want float64
	}{
		{"opening bell", at(9, 15), 80},
		{"morning session", at(10, 30), 65},
		{"lunch lull", at(12, 30), 35},
		{"afternoon session", at(14, 0), 60},
		{"closing bell", at(15, 45), 75},
		{"after hours", at(18, 0), 40},
		{"overnight", at(3, 0), 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Apply(50, tt.when), 1e-9)
		})
	}
}

func TestTradingDayPattern_WeekendFloor(t *testing.T) {
	p := &TradingDayPattern{}
	saturday := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)

	assert.InDelta(t, 20, p.Apply(50, saturday), 1e-9)
}

func TestTradingDayPattern_ClampsAtHundred(t *testing.T) {
	p := &TradingDayPattern{}

	assert.Equal(t, 100.0, p.Apply(90, at(9, 15)))
}

func TestServiceSim_SetInstancesClamped(t *testing.T) {
	svc := NewServiceSim("exec-a", ServiceSimConfig{
		InitialInstances: 4,
		MinInstances:     2,
		MaxInstances:     10,
	})

	assert.Equal(t, 10, svc.SetInstances(25))
	assert.Equal(t, 2, svc.SetInstances(0))
	assert.Equal(t, 6, svc.SetInstances(6))
	assert.Equal(t, 6, svc.Instances())
}

func TestServiceSim_SpikeOverridesPattern(t *testing.T) {
	svc := NewServiceSim("exec-a", ServiceSimConfig{
		InitialInstances: 3,
		BaseCPU:          40,
		Variance:         0,
	})
	svc.SetPattern(PatternSteady)
	svc.InjectSpike(95, time.Minute, 0)

	m := svc.CollectMetrics(time.Now())
	assert.InDelta(t, 95, m.Resources.CPUUsage, 0.01)
}

func TestServiceSim_ProbeShape(t *testing.T) {
	svc := NewServiceSim("exec-a", ServiceSimConfig{
		InitialInstances: 5,
		BaseCPU:          50,
		BaseMemory:       60,
		Variance:         0,
	})
	svc.SetPattern(PatternSteady)

	now := at(10, 0)
	m := svc.CollectMetrics(now)

	assert.Equal(t, "exec-a", m.ServiceID)
	assert.Equal(t, now.UTC().Format(time.RFC3339), m.CapturedAt)
	assert.Equal(t, 5, m.Instances.Current)
	assert.Equal(t, 5, m.Instances.Healthy)
	// base CPU 50 means loadFactor 1.0: five instances at reference RPS.
	assert.InDelta(t, 5*referenceRPSPerInstance, m.Performance.ThroughputRPS, 1e-6)
	require.Contains(t, m.Custom, "order_rate")
	require.Contains(t, m.Custom, "fill_latency_us")
}

func TestSimulator_GetOrCreateService(t *testing.T) {
	sim := New(Config{Port: 9000})

	svc := sim.GetOrCreateService("exec-a")
	assert.Same(t, svc, sim.GetOrCreateService("exec-a"))

	_, exists := sim.GetService("exec-b")
	assert.False(t, exists)
}
