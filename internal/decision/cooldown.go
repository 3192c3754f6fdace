package decision

import (
	"sync"
	"time"
)

// CooldownGate tracks the last successful scale-up and scale-down per service.
// A service is considered in cooldown when either direction's window is still
// open; the engine short-circuits to MAINTAIN while that holds. Stamps are
// written by the executor after a successful backend call, never at decision
// time.
type CooldownGate struct {
	mu     sync.RWMutex
	stamps map[string]cooldownStamps

	scaleUpCooldown   time.Duration
	scaleDownCooldown time.Duration
}

type cooldownStamps struct {
	lastScaleUp   time.Time
	lastScaleDown time.Time
}

func NewCooldownGate(scaleUpCooldown, scaleDownCooldown time.Duration) *CooldownGate {
	return &CooldownGate{
		stamps:            make(map[string]cooldownStamps),
		scaleUpCooldown:   scaleUpCooldown,
		scaleDownCooldown: scaleDownCooldown,
	}
}

// InCooldown reports whether either direction's cooldown window is open.
func (g *CooldownGate) InCooldown(serviceID string, now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.stamps[serviceID]
	if !ok {
		return false
	}
	if !s.lastScaleUp.IsZero() && now.Sub(s.lastScaleUp) < g.scaleUpCooldown {
		return true
	}
	if !s.lastScaleDown.IsZero() && now.Sub(s.lastScaleDown) < g.scaleDownCooldown {
		return true
	}
	return false
}

// StampUp records a successful scale-up completion.
func (g *CooldownGate) StampUp(serviceID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stamps[serviceID]
	s.lastScaleUp = now
	g.stamps[serviceID] = s
}

// StampDown records a successful scale-down completion.
func (g *CooldownGate) StampDown(serviceID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stamps[serviceID]
	s.lastScaleDown = now
	g.stamps[serviceID] = s
}

// LastStamps returns the recorded timestamps, zero values when never stamped.
func (g *CooldownGate) LastStamps(serviceID string) (lastUp, lastDown time.Time) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.stamps[serviceID]
	return s.lastScaleUp, s.lastScaleDown
}

// Clear drops all stamps for a service.
func (g *CooldownGate) Clear(serviceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stamps, serviceID)
}
