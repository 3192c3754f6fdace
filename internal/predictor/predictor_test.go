package predictor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/internal/predictor"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

type stubHistory struct {
	decisions []*models.ScalingDecision
}

func (s *stubHistory) History(serviceID string, limit int) []*models.ScalingDecision {
	if limit > 0 && len(s.decisions) > limit {
		return s.decisions[len(s.decisions)-limit:]
	}
	return s.decisions
}

func decisionsWith(counts ...int) []*models.ScalingDecision {
	out := make([]*models.ScalingDecision, 0, len(counts))
	for _, c := range counts {
		out = append(out, &models.ScalingDecision{RecommendedInstances: c})
	}
	return out
}

func defaultPredictor(h predictor.DecisionHistory) *predictor.Predictor {
	return predictor.New(h, config.PredictorConfig{HorizonMinutes: 60})
}

func TestPredict_IncreasingTrendShape(t *testing.T) {
	// Older half averages 4 instances, newer half 6.
	history := &stubHistory{decisions: decisionsWith(4, 4, 4, 4, 4, 6, 6, 6, 6, 6)}
	p := defaultPredictor(history)
	// Weekday at 10:00 local: business-hours seasonal multiplier.
	now := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	pred := p.Predict("svc-a", now)

	assert.Equal(t, models.TrendIncreasing, pred.Trend)
	assert.InDelta(t, 0.5, pred.TrendRate, 1e-9)
	assert.Equal(t, 0.8, pred.TrendConfidence)
	require.Len(t, pred.Points, 10)

	for i, pt := range pred.Points {
		assert.Equal(t, now.Add(time.Duration(i+1)*6*time.Minute), pt.Timestamp, "points 6 minutes apart")
		assert.GreaterOrEqual(t, pt.RecommendedInstances, 1)
		if i > 0 {
			assert.Less(t, pt.Confidence, pred.Points[i-1].Confidence, "confidence strictly decreasing")
		}
	}
	assert.Equal(t, 1.0, pred.Points[0].Confidence)
	assert.InDelta(t, 0.55, pred.Points[9].Confidence, 1e-9)

	// base 100 * 1.5 business hours * (1 + 0.5*i/10)
	assert.InDelta(t, 150.0, pred.Points[0].PredictedLoad, 1e-9)
	assert.InDelta(t, 150.0*1.45, pred.Points[9].PredictedLoad, 1e-9)
}

func TestPredict_DecreasingTrend(t *testing.T) {
	history := &stubHistory{decisions: decisionsWith(8, 8, 8, 8, 8, 4, 4, 4, 4, 4)}
	p := defaultPredictor(history)

	pred := p.Predict("svc-a", time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, models.TrendDecreasing, pred.Trend)
	assert.InDelta(t, 0.5, pred.TrendRate, 1e-9)
}

func TestPredict_StableWithinBand(t *testing.T) {
	history := &stubHistory{decisions: decisionsWith(10, 10, 10, 10, 10, 10, 10, 11, 10, 10)}
	p := defaultPredictor(history)

	pred := p.Predict("svc-a", time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, models.TrendStable, pred.Trend)
	assert.Zero(t, pred.TrendRate)
}

func TestPredict_SparseHistoryLowConfidence(t *testing.T) {
	history := &stubHistory{decisions: decisionsWith(4, 4)}
	p := defaultPredictor(history)

	pred := p.Predict("svc-a", time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, 0.4, pred.TrendConfidence)
	require.Len(t, pred.Points, 10)
}

func TestPredict_EmptyHistoryIsStable(t *testing.T) {
	p := defaultPredictor(&stubHistory{})

	pred := p.Predict("svc-a", time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, models.TrendStable, pred.Trend)
	assert.Equal(t, 0.4, pred.TrendConfidence)
	require.Len(t, pred.Points, 10)
	for _, pt := range pred.Points {
		assert.GreaterOrEqual(t, pt.RecommendedInstances, 1)
	}
}

func TestPredictHorizon_CustomHorizonSetsSpacing(t *testing.T) {
	p := defaultPredictor(&stubHistory{})
	now := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	pred := p.PredictHorizon("svc-a", now, 120)

	assert.Equal(t, 120, pred.HorizonMinutes)
	require.Len(t, pred.Points, 10)
	for i, pt := range pred.Points {
		assert.Equal(t, now.Add(time.Duration(i+1)*12*time.Minute), pt.Timestamp, "points 12 minutes apart over the 2h horizon")
	}
}

func TestPredictHorizon_NonPositiveFallsBackToConfigured(t *testing.T) {
	p := defaultPredictor(&stubHistory{})
	now := time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC)

	pred := p.PredictHorizon("svc-a", now, 0)

	assert.Equal(t, 60, pred.HorizonMinutes)
	assert.Equal(t, now.Add(6*time.Minute), pred.Points[0].Timestamp)
}

func TestPredict_SeasonalMultipliers(t *testing.T) {
	p := defaultPredictor(&stubHistory{})

	tests := []struct {
		name string
		now  time.Time
		want float64
	}{
		{"weekday business hours", time.Date(2025, 2, 11, 10, 0, 0, 0, time.UTC), 150},
		{"weekday evening", time.Date(2025, 2, 11, 20, 0, 0, 0, time.UTC), 80},
		{"weekend", time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC), 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := p.Predict("svc-a", tt.now)
			assert.InDelta(t, tt.want, pred.Points[0].PredictedLoad, 1e-9)
		})
	}
}
