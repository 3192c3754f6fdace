package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradefleet/fleet-autoscaler/internal/resilience"
)

var errProbe = errors.New("probe failed")

func newBreaker(threshold int, recovery time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:              "test",
		FailureThreshold:  threshold,
		RecoveryTimeout:   recovery,
		HalfOpenSuccesses: 2,
	})
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return errProbe })
		assert.ErrorIs(t, err, errProbe)
	}

	assert.Equal(t, resilience.StateOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := newBreaker(3, time.Minute)

	_ = cb.Execute(func() error { return errProbe })
	_ = cb.Execute(func() error { return errProbe })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errProbe })
	_ = cb.Execute(func() error { return errProbe })

	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errProbe })
	assert.Equal(t, resilience.StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	// First probe transitions to half-open.
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, resilience.StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return errProbe })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errProbe })
	assert.Equal(t, resilience.StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := newBreaker(1, time.Minute)

	_ = cb.Execute(func() error { return errProbe })
	assert.Equal(t, resilience.StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, resilience.StateClosed, cb.State())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}
