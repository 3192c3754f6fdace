package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/fleet-autoscaler")
	}

	v.SetEnvPrefix("FLEETSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: defaults plus env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fleet-autoscaler")
	v.SetDefault("app.mode", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "fleetscaler")
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("collector.type", "http")
	v.SetDefault("collector.endpoint", "http://localhost:9000/metrics")
	v.SetDefault("collector.interval", "10s")
	v.SetDefault("collector.timeout", "5s")
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("collector.circuit_breaker.max_failures", 5)
	v.SetDefault("collector.circuit_breaker.timeout", "30s")

	v.SetDefault("scaling.enabled", true)
	v.SetDefault("scaling.provider", "simulator")
	v.SetDefault("scaling.limits.min_instances", 2)
	v.SetDefault("scaling.limits.max_instances", 50)
	v.SetDefault("scaling.limits.scale_up_cooldown", "5m")
	v.SetDefault("scaling.limits.scale_down_cooldown", "10m")
	v.SetDefault("scaling.orchestrator.poll_interval", "2s")
	v.SetDefault("scaling.engine.service_label", "fleetscaler.service_id")
	v.SetDefault("scaling.engine.image_label", "fleetscaler.image")
	v.SetDefault("scaling.engine.stop_timeout", "30s")
	v.SetDefault("scaling.engine.poll_interval", "2s")
	v.SetDefault("scaling.cloud.region", "us-east-1")
	v.SetDefault("scaling.cloud.group_prefix", "fleet-")
	v.SetDefault("scaling.cloud.poll_interval", "5s")

	v.SetDefault("trading.market_hours.start", "09:00")
	v.SetDefault("trading.market_hours.end", "16:00")
	v.SetDefault("trading.patterns.opening_bell.multiplier", 1.5)
	v.SetDefault("trading.patterns.closing_bell.multiplier", 1.4)
	v.SetDefault("trading.patterns.lunch.multiplier", 0.8)
	v.SetDefault("trading.patterns.month_end.multiplier", 1.3)
	v.SetDefault("trading.patterns.quarter_end.multiplier", 1.6)
	v.SetDefault("trading.compliance.min_instances_for_redundancy", 2)
	v.SetDefault("trading.compliance.max_scale_down_rate_pct", 50.0)
	v.SetDefault("trading.compliance.large_scale_approval_threshold", 30)

	v.SetDefault("executor.scale_timeout", "300s")
	v.SetDefault("executor.hook_timeout", "3s")

	v.SetDefault("predictor.enabled", true)
	v.SetDefault("predictor.horizon_minutes", 60)
	v.SetDefault("predictor.base_load", 100.0)
	v.SetDefault("predictor.load_per_instance", 25.0)
	v.SetDefault("predictor.refresh_interval", "5m")

	v.SetDefault("reporting.schedule", "0 * * * *")
	v.SetDefault("reporting.decision_retention_days", 7)
	v.SetDefault("reporting.event_retention_days", 30)
	v.SetDefault("reporting.cost_per_instance_hour", 0.12)

	v.SetDefault("alerts.enabled", true)

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.jwt_secret", "change-me-in-production")
	v.SetDefault("api.jwt_duration", "24h")
	v.SetDefault("api.jwt_issuer", "fleet-autoscaler")
	v.SetDefault("api.default_limit", 20)
	v.SetDefault("api.max_limit", 100)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("events.buffer_size", 100)
}
