// Package conf handles loading and validation of the service configuration.
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the full service configuration.
type Settings struct {
	Database  DatabaseSettings  `mapstructure:"database"`
	Features  FeatureSettings   `mapstructure:"features"`
	Ensemble  EnsembleSettings  `mapstructure:"ensemble"`
	Engine    EngineSettings    `mapstructure:"engine"`
	Dispatch  DispatchSettings  `mapstructure:"dispatch"`
	Ingest    IngestSettings    `mapstructure:"ingest"`
	Notify    NotifySettings    `mapstructure:"notify"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	LogLevel  string            `mapstructure:"log_level"`
}

// DatabaseSettings selects the persistence backend.
type DatabaseSettings struct {
	Type string `mapstructure:"type"` // "sqlite" or "mysql"
	Path string `mapstructure:"path"` // sqlite file path
	DSN  string `mapstructure:"dsn"`  // mysql DSN
}

// FeatureSettings tunes the feature aggregator.
type FeatureSettings struct {
	// SampleInterval is the expected cadence of observations; it sizes the
	// expected-sample count used by the gap-ratio check.
	SampleInterval Duration `mapstructure:"sample_interval"`
	// MaxGapRatio is the missing-data ceiling above which aggregation fails
	// with a data gap error instead of producing a degraded snapshot.
	MaxGapRatio float64 `mapstructure:"max_gap_ratio"`
}

// EnsembleSettings tunes the risk ensemble.
type EnsembleSettings struct {
	// MinModels is the minimum number of scorers that must succeed for the
	// ensemble to produce a prediction.
	MinModels int `mapstructure:"min_models"`
	// ModelTimeout bounds each scorer invocation.
	ModelTimeout Duration `mapstructure:"model_timeout"`
	// MaxConcurrent bounds how many scorers run at once.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// EngineSettings tunes evaluation cycles.
type EngineSettings struct {
	// CycleInterval defines cycle identity: evaluation timestamps are
	// truncated to this interval to form the cycle start.
	CycleInterval Duration `mapstructure:"cycle_interval"`
	// Horizons lists the prediction horizons evaluated each cycle.
	Horizons []string `mapstructure:"horizons"`
	// PredictionCacheTTL bounds staleness of the latest-prediction cache.
	PredictionCacheTTL Duration `mapstructure:"prediction_cache_ttl"`
}

// DispatchSettings tunes the notification dispatcher.
type DispatchSettings struct {
	Workers           int      `mapstructure:"workers"`
	ClaimBatchSize    int      `mapstructure:"claim_batch_size"`
	PollInterval      Duration `mapstructure:"poll_interval"`
	MaxAttempts       int      `mapstructure:"max_attempts"`
	InitialBackoff    Duration `mapstructure:"initial_backoff"`
	BackoffMultiplier float64  `mapstructure:"backoff_multiplier"`
	MaxBackoff        Duration `mapstructure:"max_backoff"`
	// BreakerThreshold is the consecutive-failure count that opens the
	// per-channel circuit breaker.
	BreakerThreshold uint32   `mapstructure:"breaker_threshold"`
	BreakerCooldown  Duration `mapstructure:"breaker_cooldown"`
}

// IngestSettings configures the MQTT observation bridge.
type IngestSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// NotifySettings maps channels to shoutrrr service URLs.
type NotifySettings struct {
	EmailURL string `mapstructure:"email_url"`
	SMSURL   string `mapstructure:"sms_url"`
}

// setDefaults registers default values on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "floodsense.db")
	v.SetDefault("features.sample_interval", "1h")
	v.SetDefault("features.max_gap_ratio", 0.5)
	v.SetDefault("ensemble.min_models", 1)
	v.SetDefault("ensemble.model_timeout", "10s")
	v.SetDefault("ensemble.max_concurrent", 4)
	v.SetDefault("engine.cycle_interval", "1h")
	v.SetDefault("engine.horizons", []string{"24h", "48h", "72h"})
	v.SetDefault("engine.prediction_cache_ttl", "30s")
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.claim_batch_size", 25)
	v.SetDefault("dispatch.poll_interval", "10s")
	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.initial_backoff", "30s")
	v.SetDefault("dispatch.backoff_multiplier", 2.0)
	v.SetDefault("dispatch.max_backoff", "10m")
	v.SetDefault("dispatch.breaker_threshold", 5)
	v.SetDefault("dispatch.breaker_cooldown", "1m")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.listen", "0.0.0.0:9190")
	v.SetDefault("ingest.enabled", false)
	v.SetDefault("ingest.topic", "floodsense/observations/+")
	v.SetDefault("ingest.client_id", "floodsense-ingest")
}

// Load reads configuration from the given file (optional) plus environment
// variables prefixed FLOODSENSE_, applies defaults, and validates.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("floodsense")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (s *Settings) Validate() error {
	if s.Features.MaxGapRatio < 0 || s.Features.MaxGapRatio > 1 {
		return fmt.Errorf("features.max_gap_ratio must be in [0,1], got %v", s.Features.MaxGapRatio)
	}
	if s.Features.SampleInterval.Std() <= 0 {
		return fmt.Errorf("features.sample_interval must be positive")
	}
	if s.Ensemble.MinModels < 1 {
		return fmt.Errorf("ensemble.min_models must be at least 1, got %d", s.Ensemble.MinModels)
	}
	if s.Engine.CycleInterval.Std() <= 0 {
		return fmt.Errorf("engine.cycle_interval must be positive")
	}
	for _, h := range s.Engine.Horizons {
		if _, err := time.ParseDuration(h); err != nil {
			return fmt.Errorf("engine.horizons entry %q is not a duration: %w", h, err)
		}
	}
	if s.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1, got %d", s.Dispatch.MaxAttempts)
	}
	if s.Dispatch.BackoffMultiplier < 1 {
		return fmt.Errorf("dispatch.backoff_multiplier must be >= 1, got %v", s.Dispatch.BackoffMultiplier)
	}
	switch s.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("database.type must be sqlite or mysql, got %q", s.Database.Type)
	}
	return nil
}
