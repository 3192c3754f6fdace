package config

import (
	"fmt"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

type Config struct {
	App        AppConfig             `mapstructure:"app"`
	Database   DatabaseConfig        `mapstructure:"database"`
	Services   []ServiceConfig       `mapstructure:"services"`
	Collector  CollectorConfig       `mapstructure:"collector"`
	Scaling    ScalingConfig         `mapstructure:"scaling"`
	Trading    models.TradingProfile `mapstructure:"trading"`
	Executor   ExecutorConfig        `mapstructure:"executor"`
	Predictor  PredictorConfig       `mapstructure:"predictor"`
	Reporting  ReportingConfig       `mapstructure:"reporting"`
	Alerts     AlertsConfig          `mapstructure:"alerts"`
	API        APIConfig             `mapstructure:"api"`
	Prometheus PrometheusConfig      `mapstructure:"prometheus"`
	Events     EventsConfig          `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ServiceConfig declares one monitored service.
type ServiceConfig struct {
	ID               string `mapstructure:"id"`
	Name             string `mapstructure:"name"`
	InitialInstances int    `mapstructure:"initial_instances"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, sslMode,
	)
}

type CollectorConfig struct {
	Type           string               `mapstructure:"type"`
	Endpoint       string               `mapstructure:"endpoint"`
	Interval       time.Duration        `mapstructure:"interval"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	RetryAttempts  int                  `mapstructure:"retry_attempts"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ScalingConfig struct {
	// Enabled is the master kill switch: when false, metrics are still
	// collected but the engine emits only MAINTAIN decisions.
	Enabled  bool                 `mapstructure:"enabled"`
	Provider string               `mapstructure:"provider"`
	Limits   LimitsConfig         `mapstructure:"limits"`
	Rules    []models.ScalingRule `mapstructure:"rules"`

	Orchestrator OrchestratorBackendConfig `mapstructure:"orchestrator"`
	Engine       EngineBackendConfig       `mapstructure:"engine"`
	Cloud        CloudBackendConfig        `mapstructure:"cloud"`
}

type LimitsConfig struct {
	MinInstances      int           `mapstructure:"min_instances"`
	MaxInstances      int           `mapstructure:"max_instances"`
	ScaleUpCooldown   time.Duration `mapstructure:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `mapstructure:"scale_down_cooldown"`
}

func (l LimitsConfig) ToGlobalLimits() models.GlobalLimits {
	return models.GlobalLimits{
		MinInstances:      l.MinInstances,
		MaxInstances:      l.MaxInstances,
		ScaleUpCooldown:   l.ScaleUpCooldown,
		ScaleDownCooldown: l.ScaleDownCooldown,
	}
}

type OrchestratorBackendConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type EngineBackendConfig struct {
	ServiceLabel string        `mapstructure:"service_label"`
	ImageLabel   string        `mapstructure:"image_label"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type CloudBackendConfig struct {
	Region       string        `mapstructure:"region"`
	GroupPrefix  string        `mapstructure:"group_prefix"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ExecutorConfig struct {
	ScaleTimeout time.Duration `mapstructure:"scale_timeout"`
	PreHooks     []string      `mapstructure:"pre_hooks"`
	PostHooks    []string      `mapstructure:"post_hooks"`
	HookTimeout  time.Duration `mapstructure:"hook_timeout"`
}

type PredictorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	HorizonMinutes  int           `mapstructure:"horizon_minutes"`
	BaseLoad        float64       `mapstructure:"base_load"`
	LoadPerInstance float64       `mapstructure:"load_per_instance"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type ReportingConfig struct {
	Schedule              string  `mapstructure:"schedule"`
	DecisionRetentionDays int     `mapstructure:"decision_retention_days"`
	EventRetentionDays    int     `mapstructure:"event_retention_days"`
	CostPerInstanceHour   float64 `mapstructure:"cost_per_instance_hour"`
}

type AlertsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type APIConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    int           `mapstructure:"rate_limit"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTDuration  time.Duration `mapstructure:"jwt_duration"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
