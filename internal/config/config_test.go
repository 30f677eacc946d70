package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
session:
  max_reactions: 200
  window: 45s
  recent_questions: 10

gateway:
  model: "gpt-4o-mini"
  burst: 3
  refill_interval: 1s
  min_interval: 300ms
  cache_ttl: 8s
  cache_max: 64
  enhance_timeout: 10s

pacing:
  im_lost_critical: 5
  im_lost_warning: 3
  slow_down_critical: 8
  slow_down_warning: 5
  speed_up_threshold: 5
  show_code_demand: 10
  show_code_interest: 6
  alert_cooldown: 15s
  enhance_cooldown: 10s

sentiment:
  message_weight: 0.8
  min_questions: 3

clustering:
  min_questions: 2
  inference_min: 5
  max_questions: 15

logging:
  level: "debug"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Session.MaxReactions != 200 {
		t.Errorf("unexpected max_reactions: %d", cfg.Session.MaxReactions)
	}
	if cfg.Session.Window != 45*time.Second {
		t.Errorf("unexpected window: %v", cfg.Session.Window)
	}
	if cfg.Gateway.MinInterval != 300*time.Millisecond {
		t.Errorf("unexpected min_interval: %v", cfg.Gateway.MinInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Logging.Level)
	}

	// Sections omitted from the file pick up defaults.
	if cfg.Pacing.AmbiguousLow != 40 || cfg.Pacing.AmbiguousHigh != 70 {
		t.Errorf("expected default ambiguity band 40..70, got %d..%d", cfg.Pacing.AmbiguousLow, cfg.Pacing.AmbiguousHigh)
	}
	if cfg.Sentiment.ConfidenceGate != 80 {
		t.Errorf("expected default confidence gate 80, got %d", cfg.Sentiment.ConfidenceGate)
	}
	if cfg.Clustering.SimilarityCacheMax != 1000 {
		t.Errorf("expected default similarity cache max 1000, got %d", cfg.Clustering.SimilarityCacheMax)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
	if cfg.Gateway.Burst != 3 {
		t.Errorf("default gateway burst = %d, want 3", cfg.Gateway.Burst)
	}
	if cfg.Pacing.ImLostCritical != 5 {
		t.Errorf("default im_lost_critical = %d, want 5", cfg.Pacing.ImLostCritical)
	}
	if cfg.Sentiment.MessageWeight != 0.80 {
		t.Errorf("default message_weight = %f, want 0.80", cfg.Sentiment.MessageWeight)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero session buffer", func(c *Config) { c.Session.MaxReactions = 0 }},
		{"window below a second", func(c *Config) { c.Session.Window = 500 * time.Millisecond }},
		{"zero gateway burst", func(c *Config) { c.Gateway.Burst = 0 }},
		{"critical below warning", func(c *Config) { c.Pacing.ImLostCritical = 1 }},
		{"inverted ambiguity band", func(c *Config) { c.Pacing.AmbiguousLow = 90 }},
		{"message weight above one", func(c *Config) { c.Sentiment.MessageWeight = 1.5 }},
		{"inference min below clustering min", func(c *Config) { c.Clustering.InferenceMin = 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should have failed")
			}
		})
	}
}
