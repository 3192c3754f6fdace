package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefleet/fleet-autoscaler/pkg/config"
	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "fleet-autoscaler", cfg.App.Name)
	assert.True(t, cfg.Scaling.Enabled)
	assert.Equal(t, "simulator", cfg.Scaling.Provider)
	assert.Equal(t, 2, cfg.Scaling.Limits.MinInstances)
	assert.Equal(t, 50, cfg.Scaling.Limits.MaxInstances)
	assert.Equal(t, 5*time.Minute, cfg.Scaling.Limits.ScaleUpCooldown)
	assert.Equal(t, 300*time.Second, cfg.Executor.ScaleTimeout)
	assert.Equal(t, 100.0, cfg.Predictor.BaseLoad)
	assert.Equal(t, 25.0, cfg.Predictor.LoadPerInstance)
	assert.Equal(t, "09:00", cfg.Trading.MarketHours.Start)
	assert.Equal(t, 7, cfg.Reporting.DecisionRetentionDays)
	assert.Equal(t, 30, cfg.Reporting.EventRetentionDays)
}

func TestValidate_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad provider", func(c *config.Config) { c.Scaling.Provider = "bare-metal" }},
		{"min above max", func(c *config.Config) {
			c.Scaling.Limits.MinInstances = 10
			c.Scaling.Limits.MaxInstances = 5
		}},
		{"timeout exceeds interval", func(c *config.Config) {
			c.Collector.Timeout = c.Collector.Interval * 2
		}},
		{"rate pct out of range", func(c *config.Config) {
			c.Trading.Compliance.MaxScaleDownRatePct = 150
		}},
		{"rule missing condition", func(c *config.Config) {
			c.Scaling.Rules = []models.ScalingRule{{ID: "r1", Enabled: true}}
		}},
		{"rule bad comparison", func(c *config.Config) {
			c.Scaling.Rules = []models.ScalingRule{{
				ID: "r1",
				Conditions: []models.ScalingCondition{
					{MetricPath: "cpu.usage", Comparison: "GTE", Threshold: 80},
				},
			}}
		}},
		{"default secret in production", func(c *config.Config) { c.App.Mode = "production" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
