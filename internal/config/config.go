// Package config loads and validates the engine configuration from a YAML
// file with environment variable overrides. Every tuned heuristic constant of
// the analyzers (cooldowns, ambiguity bands, cache TTLs and caps, fusion
// weights) is a configuration parameter: the shipped defaults match the
// values the engine was tuned with, but none of them is an invariant.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete engine configuration.
type Config struct {
	Session    SessionConfig    `mapstructure:"session"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Pacing     PacingConfig     `mapstructure:"pacing"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SessionConfig bounds the per-session event buffer.
type SessionConfig struct {
	MaxReactions    int           `mapstructure:"max_reactions"`
	Window          time.Duration `mapstructure:"window"`
	RecentQuestions int           `mapstructure:"recent_questions"`
}

// GatewayConfig holds inference gateway settings.
type GatewayConfig struct {
	Model          string        `mapstructure:"model"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
	MinInterval    time.Duration `mapstructure:"min_interval"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CacheMax       int           `mapstructure:"cache_max"`
	EnhanceTimeout time.Duration `mapstructure:"enhance_timeout"`
}

// PacingConfig holds the pacing analyzer's thresholds and gates.
type PacingConfig struct {
	ImLostCritical   int           `mapstructure:"im_lost_critical"`
	ImLostWarning    int           `mapstructure:"im_lost_warning"`
	SlowDownCritical int           `mapstructure:"slow_down_critical"`
	SlowDownWarning  int           `mapstructure:"slow_down_warning"`
	SpeedUpThreshold int           `mapstructure:"speed_up_threshold"`
	ShowCodeDemand   int           `mapstructure:"show_code_demand"`
	ShowCodeInterest int           `mapstructure:"show_code_interest"`
	AlertCooldown    time.Duration `mapstructure:"alert_cooldown"`
	EnhanceCooldown  time.Duration `mapstructure:"enhance_cooldown"`
	MinReactions     int           `mapstructure:"min_reactions"`
	BulkReactions    int           `mapstructure:"bulk_reactions"`
	AmbiguousLow     int           `mapstructure:"ambiguous_low"`
	AmbiguousHigh    int           `mapstructure:"ambiguous_high"`
	HistorySize      int           `mapstructure:"history_size"`
	VelocitySamples  int           `mapstructure:"velocity_samples"`
	InsightCacheTTL  time.Duration `mapstructure:"insight_cache_ttl"`
	InsightCacheMax  int           `mapstructure:"insight_cache_max"`
}

// SentimentConfig holds the sentiment analyzer's gates and weights.
type SentimentConfig struct {
	EnhanceCooldown time.Duration `mapstructure:"enhance_cooldown"`
	MinQuestions    int           `mapstructure:"min_questions"`
	ConfidenceGate  int           `mapstructure:"confidence_gate"`
	MessageWeight   float64       `mapstructure:"message_weight"`
	HistorySize     int           `mapstructure:"history_size"`
	RecentMessages  int           `mapstructure:"recent_messages"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheMax        int           `mapstructure:"cache_max"`
}

// ClusteringConfig holds the clustering analyzer's selection thresholds.
type ClusteringConfig struct {
	MinQuestions       int `mapstructure:"min_questions"`
	InferenceMin       int `mapstructure:"inference_min"`
	MaxQuestions       int `mapstructure:"max_questions"`
	SimilarityCacheMax int `mapstructure:"similarity_cache_max"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("AUDIENCE_PULSE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with every value at its shipped default.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Session defaults
	v.SetDefault("session.max_reactions", 100)
	v.SetDefault("session.window", "30s")
	v.SetDefault("session.recent_questions", 10)

	// Gateway defaults
	v.SetDefault("gateway.model", "gpt-4o-mini")
	v.SetDefault("gateway.api_base_url", "")
	v.SetDefault("gateway.burst", 3)
	v.SetDefault("gateway.refill_interval", "1s")
	v.SetDefault("gateway.min_interval", "300ms")
	v.SetDefault("gateway.cache_ttl", "8s")
	v.SetDefault("gateway.cache_max", 64)
	v.SetDefault("gateway.enhance_timeout", "10s")

	// Pacing defaults
	v.SetDefault("pacing.im_lost_critical", 5)
	v.SetDefault("pacing.im_lost_warning", 3)
	v.SetDefault("pacing.slow_down_critical", 8)
	v.SetDefault("pacing.slow_down_warning", 5)
	v.SetDefault("pacing.speed_up_threshold", 5)
	v.SetDefault("pacing.show_code_demand", 10)
	v.SetDefault("pacing.show_code_interest", 6)
	v.SetDefault("pacing.alert_cooldown", "15s")
	v.SetDefault("pacing.enhance_cooldown", "10s")
	v.SetDefault("pacing.min_reactions", 5)
	v.SetDefault("pacing.bulk_reactions", 15)
	v.SetDefault("pacing.ambiguous_low", 40)
	v.SetDefault("pacing.ambiguous_high", 70)
	v.SetDefault("pacing.history_size", 10)
	v.SetDefault("pacing.velocity_samples", 10)
	v.SetDefault("pacing.insight_cache_ttl", "30s")
	v.SetDefault("pacing.insight_cache_max", 20)

	// Sentiment defaults
	v.SetDefault("sentiment.enhance_cooldown", "10s")
	v.SetDefault("sentiment.min_questions", 3)
	v.SetDefault("sentiment.confidence_gate", 80)
	v.SetDefault("sentiment.message_weight", 0.80)
	v.SetDefault("sentiment.history_size", 30)
	v.SetDefault("sentiment.recent_messages", 5)
	v.SetDefault("sentiment.cache_ttl", "5m")
	v.SetDefault("sentiment.cache_max", 50)

	// Clustering defaults
	v.SetDefault("clustering.min_questions", 2)
	v.SetDefault("clustering.inference_min", 5)
	v.SetDefault("clustering.max_questions", 15)
	v.SetDefault("clustering.similarity_cache_max", 1000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Session.MaxReactions < 1 {
		return fmt.Errorf("session.max_reactions must be at least 1")
	}
	if c.Session.Window < time.Second {
		return fmt.Errorf("session.window must be at least 1 second")
	}
	if c.Session.RecentQuestions < 1 {
		return fmt.Errorf("session.recent_questions must be at least 1")
	}

	if c.Gateway.Burst < 1 {
		return fmt.Errorf("gateway.burst must be at least 1")
	}
	if c.Gateway.RefillInterval <= 0 {
		return fmt.Errorf("gateway.refill_interval must be positive")
	}
	if c.Gateway.MinInterval <= 0 {
		return fmt.Errorf("gateway.min_interval must be positive")
	}
	if c.Gateway.CacheTTL <= 0 {
		return fmt.Errorf("gateway.cache_ttl must be positive")
	}
	if c.Gateway.CacheMax < 1 {
		return fmt.Errorf("gateway.cache_max must be at least 1")
	}
	if c.Gateway.EnhanceTimeout < time.Second {
		return fmt.Errorf("gateway.enhance_timeout must be at least 1 second")
	}

	if c.Pacing.ImLostCritical < c.Pacing.ImLostWarning {
		return fmt.Errorf("pacing.im_lost_critical must be >= pacing.im_lost_warning")
	}
	if c.Pacing.SlowDownCritical < c.Pacing.SlowDownWarning {
		return fmt.Errorf("pacing.slow_down_critical must be >= pacing.slow_down_warning")
	}
	if c.Pacing.ShowCodeDemand < c.Pacing.ShowCodeInterest {
		return fmt.Errorf("pacing.show_code_demand must be >= pacing.show_code_interest")
	}
	if c.Pacing.AmbiguousLow > c.Pacing.AmbiguousHigh {
		return fmt.Errorf("pacing.ambiguous_low must be <= pacing.ambiguous_high")
	}
	if c.Pacing.HistorySize < 3 {
		return fmt.Errorf("pacing.history_size must be at least 3")
	}
	if c.Pacing.VelocitySamples < 3 {
		return fmt.Errorf("pacing.velocity_samples must be at least 3")
	}
	if c.Pacing.InsightCacheMax < 2 {
		return fmt.Errorf("pacing.insight_cache_max must be at least 2")
	}

	if c.Sentiment.MessageWeight < 0 || c.Sentiment.MessageWeight > 1 {
		return fmt.Errorf("sentiment.message_weight must be between 0.0 and 1.0")
	}
	if c.Sentiment.MinQuestions < 1 {
		return fmt.Errorf("sentiment.min_questions must be at least 1")
	}
	if c.Sentiment.ConfidenceGate < 0 || c.Sentiment.ConfidenceGate > 100 {
		return fmt.Errorf("sentiment.confidence_gate must be between 0 and 100")
	}
	if c.Sentiment.HistorySize < 3 {
		return fmt.Errorf("sentiment.history_size must be at least 3")
	}
	if c.Sentiment.RecentMessages < 1 {
		return fmt.Errorf("sentiment.recent_messages must be at least 1")
	}

	if c.Clustering.MinQuestions < 2 {
		return fmt.Errorf("clustering.min_questions must be at least 2")
	}
	if c.Clustering.InferenceMin < c.Clustering.MinQuestions {
		return fmt.Errorf("clustering.inference_min must be >= clustering.min_questions")
	}
	if c.Clustering.MaxQuestions < c.Clustering.InferenceMin {
		return fmt.Errorf("clustering.max_questions must be >= clustering.inference_min")
	}
	if c.Clustering.SimilarityCacheMax < 1 {
		return fmt.Errorf("clustering.similarity_cache_max must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
