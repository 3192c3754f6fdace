package predictor

import (
	"math"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

const (
	trendWindow    = 10
	forecastPoints = 10

	upperTrendBand = 1.1
	lowerTrendBand = 0.9

	businessHoursMultiplier = 1.5
	weekendMultiplier       = 0.6
	offHoursMultiplier      = 0.8
)

// DecisionHistory supplies the recent decisions the trend is computed from.
type DecisionHistory interface {
	History(serviceID string, limit int) []*models.ScalingDecision
}

// Predictor projects near-term load for a service by combining the trend of
// recent scaling decisions with a weekly seasonal curve.
type Predictor struct {
	history         DecisionHistory
	horizonMinutes  int
	baseLoad        float64
	loadPerInstance float64
}

func New(history DecisionHistory, cfg config.PredictorConfig) *Predictor {
	horizon := cfg.HorizonMinutes
	if horizon <= 0 {
		horizon = 60
	}
	baseLoad := cfg.BaseLoad
	if baseLoad == 0 {
		baseLoad = 100
	}
	perInstance := cfg.LoadPerInstance
	if perInstance == 0 {
		perInstance = 25
	}
	return &Predictor{
		history:         history,
		horizonMinutes:  horizon,
		baseLoad:        baseLoad,
		loadPerInstance: perInstance,
	}
}

// Predict emits exactly 10 equally spaced forecast points over the
// configured horizon.
func (p *Predictor) Predict(serviceID string, now time.Time) *models.Prediction {
	return p.PredictHorizon(serviceID, now, p.horizonMinutes)
}

// PredictHorizon forecasts over a caller-supplied horizon; non-positive
// values fall back to the configured one.
func (p *Predictor) PredictHorizon(serviceID string, now time.Time, horizonMinutes int) *models.Prediction {
	if horizonMinutes <= 0 {
		horizonMinutes = p.horizonMinutes
	}

	decisions := p.history.History(serviceID, trendWindow)
	trend, rate, trendConfidence := computeTrend(decisions)

	prediction := &models.Prediction{
		ServiceID:       serviceID,
		GeneratedAt:     now,
		HorizonMinutes:  horizonMinutes,
		Trend:           trend,
		TrendRate:       rate,
		TrendConfidence: trendConfidence,
		Points:          make([]models.PredictionPoint, 0, forecastPoints),
	}

	spacing := time.Duration(horizonMinutes) * time.Minute / forecastPoints
	for i := 0; i < forecastPoints; i++ {
		at := now.Add(time.Duration(i+1) * spacing)
		load := p.baseLoad * seasonalMultiplier(at) * (1 + rate*float64(i)/10)
		prediction.Points = append(prediction.Points, models.PredictionPoint{
			Timestamp:            at,
			PredictedLoad:        load,
			RecommendedInstances: recommendedFor(load, p.loadPerInstance),
			Confidence:           pointConfidence(i),
		})
	}
	return prediction
}

// computeTrend splits the recent decisions into older and newer halves and
// compares mean recommended instance counts. Means within a 10% band either
// way count as stable.
func computeTrend(decisions []*models.ScalingDecision) (models.Trend, float64, float64) {
	confidence := 0.4
	if len(decisions) >= 5 {
		confidence = 0.8
	}
	if len(decisions) < 2 {
		return models.TrendStable, 0, confidence
	}

	mid := len(decisions) / 2
	older := meanRecommended(decisions[:mid])
	newer := meanRecommended(decisions[mid:])
	if older == 0 {
		return models.TrendStable, 0, confidence
	}

	switch {
	case newer > older*upperTrendBand:
		return models.TrendIncreasing, (newer - older) / older, confidence
	case newer < older*lowerTrendBand:
		return models.TrendDecreasing, (older - newer) / older, confidence
	}
	return models.TrendStable, 0, confidence
}

func meanRecommended(decisions []*models.ScalingDecision) float64 {
	if len(decisions) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range decisions {
		sum += float64(d.RecommendedInstances)
	}
	return sum / float64(len(decisions))
}

// seasonalMultiplier models the weekly trading-load curve: weekday business
// hours run hot, weekends run cold.
func seasonalMultiplier(at time.Time) float64 {
	switch at.Weekday() {
	case time.Saturday, time.Sunday:
		return weekendMultiplier
	}
	if at.Hour() >= 9 && at.Hour() < 17 {
		return businessHoursMultiplier
	}
	return offHoursMultiplier
}

func recommendedFor(load, loadPerInstance float64) int {
	n := int(math.Ceil(load / loadPerInstance))
	if n < 1 {
		return 1
	}
	return n
}

func pointConfidence(i int) float64 {
	return math.Max(0.5, 1-0.05*float64(i))
}
