// Package config holds configuration for the Faultline analysis pipeline.
//
// All numeric constants of the pipeline (rate limits, batch sizes, cache TTL,
// suppression thresholds, tier breakpoints) are configuration fields rather
// than hardcoded literals. Files are YAML, loaded via Koanf.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// APIPort is the port the API server listens on
	APIPort int `yaml:"api_port"`

	Oracle      OracleConfig      `yaml:"oracle"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Batch       BatchConfig       `yaml:"batch"`
	Suppression SuppressionConfig `yaml:"suppression"`
	Tiers       TierConfig        `yaml:"tiers"`
	Rules       RulesConfig       `yaml:"rules"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// OracleConfig configures the external classification oracle client.
// Presence of an API key (config or ANTHROPIC_API_KEY environment variable)
// is the single switch between oracle-backed and rule-only degraded operation.
type OracleConfig struct {
	// APIKey is the oracle credential. Falls back to ANTHROPIC_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier used for classification calls
	Model string `yaml:"model"`

	// MaxTokens is the maximum number of tokens the oracle may generate
	MaxTokens int `yaml:"max_tokens"`

	// MaxRetries bounds retry attempts for transient oracle failures
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelaySeconds is the initial retry backoff delay
	RetryBaseDelaySeconds float64 `yaml:"retry_base_delay_seconds"`

	// RetryMaxDelaySeconds caps the exponential backoff delay
	RetryMaxDelaySeconds float64 `yaml:"retry_max_delay_seconds"`
}

// RateLimitConfig configures the shared request budget and response cache.
type RateLimitConfig struct {
	// RPM is the request-per-minute ceiling of the oracle quota
	RPM int `yaml:"rpm"`

	// RPD is the request-per-day ceiling of the oracle quota
	RPD int `yaml:"rpd"`

	// SafetyMargin scales RPM/RPD down to an effective limit (0..1]
	SafetyMargin float64 `yaml:"safety_margin"`

	// WaitTimeoutSeconds bounds how long a caller blocks waiting for a slot
	WaitTimeoutSeconds float64 `yaml:"wait_timeout_seconds"`

	// CacheTTLSeconds is the response cache time-to-live
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheSize is the maximum number of cached batch responses
	CacheSize int `yaml:"cache_size"`
}

// BatchConfig configures how unresolved devices are grouped for dispatch.
type BatchConfig struct {
	// MaxBatchSize is the maximum number of devices per oracle call
	MaxBatchSize int `yaml:"max_batch_size"`

	// MaxInputBytes is the serialized payload ceiling per oracle call
	MaxInputBytes int `yaml:"max_input_bytes"`

	// InputSafetyMargin scales MaxInputBytes down before the split check
	InputSafetyMargin float64 `yaml:"input_safety_margin"`
}

// SuppressionConfig holds the silent-failure heuristic thresholds.
// These are empirical constants, kept configurable rather than baked in.
type SuppressionConfig struct {
	// MinChildren is the minimum number of affected children required
	// before a parent without its own evidence is suspected
	MinChildren int `yaml:"min_children"`

	// Ratio is the minimum affected fraction of a parent's children
	Ratio float64 `yaml:"ratio"`
}

// TierConfig holds the probability breakpoints for tier assignment.
type TierConfig struct {
	// Actionable is the probability above which a result is tier 1
	Actionable float64 `yaml:"actionable"`

	// Suspect is the probability above which a result is tier 2
	Suspect float64 `yaml:"suspect"`
}

// RulesConfig configures the local rule classifier.
type RulesConfig struct {
	// Precedence is an explicit rule-name ordering. Empty means the
	// built-in source order. Unknown names are a validation error.
	Precedence []string `yaml:"precedence"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	TLSCAPath string `yaml:"tls_ca_path"`
}

// DefaultConfig returns a Config populated with operational defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		APIPort:  8080,
		Oracle: OracleConfig{
			Model:                 "claude-3-5-haiku-20241022",
			MaxTokens:             4096,
			MaxRetries:            3,
			RetryBaseDelaySeconds: 2.0,
			RetryMaxDelaySeconds:  60.0,
		},
		RateLimit: RateLimitConfig{
			RPM:                30,
			RPD:                14400,
			SafetyMargin:       0.8,
			WaitTimeoutSeconds: 120,
			CacheTTLSeconds:    3600,
			CacheSize:          1024,
		},
		Batch: BatchConfig{
			MaxBatchSize:      5,
			MaxInputBytes:     131072,
			InputSafetyMargin: 0.9,
		},
		Suppression: SuppressionConfig{
			MinChildren: 2,
			Ratio:       0.5,
		},
		Tiers: TierConfig{
			Actionable: 0.8,
			Suspect:    0.6,
		},
	}
}

// Credential resolves the oracle API key from config or environment.
// An empty result means the engine runs in rule-only degraded mode.
func (c *Config) Credential() string {
	if c.Oracle.APIKey != "" {
		return c.Oracle.APIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// RetryBaseDelay returns the retry base delay as a Duration.
func (c *OracleConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds * float64(time.Second))
}

// RetryMaxDelay returns the retry delay cap as a Duration.
func (c *OracleConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds * float64(time.Second))
}

// WaitTimeout returns the rate-limit wait timeout as a Duration.
func (c *RateLimitConfig) WaitTimeout() time.Duration {
	return time.Duration(c.WaitTimeoutSeconds * float64(time.Second))
}

// CacheTTL returns the cache TTL as a Duration.
func (c *RateLimitConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return NewConfigError("APIPort must be between 1 and 65535")
	}

	if c.RateLimit.RPM < 1 {
		return NewConfigError("rate_limit.rpm must be at least 1")
	}
	if c.RateLimit.RPD < 1 {
		return NewConfigError("rate_limit.rpd must be at least 1")
	}
	if c.RateLimit.SafetyMargin <= 0 || c.RateLimit.SafetyMargin > 1 {
		return NewConfigError("rate_limit.safety_margin must be in (0, 1]")
	}
	if c.RateLimit.CacheTTLSeconds < 1 {
		return NewConfigError("rate_limit.cache_ttl_seconds must be at least 1")
	}
	if c.RateLimit.CacheSize < 1 {
		return NewConfigError("rate_limit.cache_size must be at least 1")
	}

	if c.Batch.MaxBatchSize < 1 {
		return NewConfigError("batch.max_batch_size must be at least 1")
	}
	if c.Batch.MaxInputBytes < 1024 {
		return NewConfigError("batch.max_input_bytes must be at least 1024")
	}
	if c.Batch.InputSafetyMargin <= 0 || c.Batch.InputSafetyMargin > 1 {
		return NewConfigError("batch.input_safety_margin must be in (0, 1]")
	}

	if c.Suppression.MinChildren < 1 {
		return NewConfigError("suppression.min_children must be at least 1")
	}
	if c.Suppression.Ratio <= 0 || c.Suppression.Ratio > 1 {
		return NewConfigError("suppression.ratio must be in (0, 1]")
	}

	if c.Tiers.Suspect >= c.Tiers.Actionable {
		return NewConfigError(fmt.Sprintf(
			"tiers.suspect (%v) must be below tiers.actionable (%v)",
			c.Tiers.Suspect, c.Tiers.Actionable))
	}

	if c.Oracle.MaxRetries < 0 {
		return NewConfigError("oracle.max_retries must not be negative")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
