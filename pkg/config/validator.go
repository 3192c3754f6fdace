package config

import (
	"errors"
	"fmt"
)

var validProviders = map[string]bool{
	"orchestrator": true,
	"engine":       true,
	"cloud":        true,
	"simulator":    true,
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, errors.New("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, errors.New("app.log_level must be one of: debug, info, warn, error"))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
	}

	if c.Collector.Interval <= 0 {
		errs = append(errs, errors.New("collector.interval must be positive"))
	}
	if c.Collector.Timeout <= 0 {
		errs = append(errs, errors.New("collector.timeout must be positive"))
	}
	if c.Collector.Timeout >= c.Collector.Interval {
		errs = append(errs, errors.New("collector.timeout must be less than collector.interval"))
	}

	if !validProviders[c.Scaling.Provider] {
		errs = append(errs, fmt.Errorf("scaling.provider must be one of: orchestrator, engine, cloud, simulator"))
	}
	if err := c.Scaling.Limits.ToGlobalLimits().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scaling.limits: %w", err))
	}
	if c.Scaling.Limits.ScaleUpCooldown < 0 || c.Scaling.Limits.ScaleDownCooldown < 0 {
		errs = append(errs, errors.New("scaling.limits cooldowns must not be negative"))
	}

	for i, rule := range c.Scaling.Rules {
		if rule.ID == "" {
			errs = append(errs, fmt.Errorf("scaling.rules[%d]: id is required", i))
		}
		if len(rule.Conditions) == 0 {
			errs = append(errs, fmt.Errorf("scaling.rules[%d]: at least one condition is required", i))
		}
		for j, cond := range rule.Conditions {
			if cond.MetricPath == "" {
				errs = append(errs, fmt.Errorf("scaling.rules[%d].conditions[%d]: metric_path is required", i, j))
			}
			if !cond.Comparison.Valid() {
				errs = append(errs, fmt.Errorf("scaling.rules[%d].conditions[%d]: comparison %q is not supported", i, j, cond.Comparison))
			}
			if cond.DurationSeconds < 0 {
				errs = append(errs, fmt.Errorf("scaling.rules[%d].conditions[%d]: duration_seconds must not be negative", i, j))
			}
		}
	}

	if c.Trading.Compliance.MinInstancesForRedundancy < 0 {
		errs = append(errs, errors.New("trading.compliance.min_instances_for_redundancy must not be negative"))
	}
	if c.Trading.Compliance.MaxScaleDownRatePct < 0 || c.Trading.Compliance.MaxScaleDownRatePct > 100 {
		errs = append(errs, errors.New("trading.compliance.max_scale_down_rate_pct must be between 0 and 100"))
	}

	if c.Executor.ScaleTimeout <= 0 {
		errs = append(errs, errors.New("executor.scale_timeout must be positive"))
	}

	if c.Predictor.HorizonMinutes <= 0 {
		errs = append(errs, errors.New("predictor.horizon_minutes must be positive"))
	}
	if c.Predictor.BaseLoad <= 0 {
		errs = append(errs, errors.New("predictor.base_load must be positive"))
	}
	if c.Predictor.LoadPerInstance <= 0 {
		errs = append(errs, errors.New("predictor.load_per_instance must be positive"))
	}

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}
	if c.App.Mode == "production" && c.API.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("api.jwt_secret must be changed in production"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
