package decision_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradefleet/fleet-autoscaler/internal/decision"
)

func TestCooldownGate_EitherDirectionBlocks(t *testing.T) {
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	assert.False(t, gate.InCooldown("svc-a", t0))

	gate.StampUp("svc-a", t0)
	assert.True(t, gate.InCooldown("svc-a", t0.Add(4*time.Minute)))
	assert.False(t, gate.InCooldown("svc-a", t0.Add(5*time.Minute)))

	// A scale-down stamp re-opens the window even though the up window expired.
	gate.StampDown("svc-a", t0.Add(6*time.Minute))
	assert.True(t, gate.InCooldown("svc-a", t0.Add(15*time.Minute)))
	assert.False(t, gate.InCooldown("svc-a", t0.Add(16*time.Minute)))
}

func TestCooldownGate_ServicesAreIndependent(t *testing.T) {
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	t0 := time.Now()

	gate.StampUp("svc-a", t0)
	assert.True(t, gate.InCooldown("svc-a", t0))
	assert.False(t, gate.InCooldown("svc-b", t0))
}

func TestCooldownGate_Clear(t *testing.T) {
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	t0 := time.Now()

	gate.StampUp("svc-a", t0)
	gate.Clear("svc-a")
	assert.False(t, gate.InCooldown("svc-a", t0))
}

func TestCooldownGate_LastStamps(t *testing.T) {
	gate := decision.NewCooldownGate(5*time.Minute, 10*time.Minute)
	t0 := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	up, down := gate.LastStamps("svc-a")
	assert.True(t, up.IsZero())
	assert.True(t, down.IsZero())

	gate.StampUp("svc-a", t0)
	gate.StampDown("svc-a", t0.Add(time.Minute))

	up, down = gate.LastStamps("svc-a")
	assert.Equal(t, t0, up)
	assert.Equal(t, t0.Add(time.Minute), down)
}
