package models

import "time"

type Trend string

const (
	TrendIncreasing Trend = "INCREASING"
	TrendDecreasing Trend = "DECREASING"
	TrendStable     Trend = "STABLE"
)

// PredictionPoint is one forecast sample on the horizon.
type PredictionPoint struct {
	Timestamp            time.Time `json:"timestamp"`
	PredictedLoad        float64   `json:"predicted_load"`
	RecommendedInstances int       `json:"recommended_instances"`
	Confidence           float64   `json:"confidence"`
}

// Prediction is the full forecast for one service over a forward horizon.
type Prediction struct {
	ServiceID       string            `json:"service_id"`
	GeneratedAt     time.Time         `json:"generated_at"`
	HorizonMinutes  int               `json:"horizon_minutes"`
	Trend           Trend             `json:"trend"`
	TrendRate       float64           `json:"trend_rate"`
	TrendConfidence float64           `json:"trend_confidence"`
	Points          []PredictionPoint `json:"points"`
}
