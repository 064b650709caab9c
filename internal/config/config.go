// Package config loads the service's runtime configuration.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the core runtime configuration for the service. Values are
// sourced from environment variables (prefix SIGNALKEEP, nested by section,
// e.g. SIGNALKEEP_SERVER_PORT), with sensible defaults applied by envconfig
// struct tags. A .env file in the working directory is loaded first if
// present.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Ingest     IngestConfig
	Pipeline   PipelineConfig
	Retention  RetentionConfig
	Auth       AuthConfig
	Alerting   AlertingConfig
	LLMTracing LLMTracingConfig
}

type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"5332"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path     string `envconfig:"PATH" default:"./signalkeep.db"`
	PoolSize int    `envconfig:"POOL_SIZE" default:"4"`
}

// IngestConfig bounds the error-event ingest surface (C4).
type IngestConfig struct {
	MaxPayloadBytes  int `envconfig:"MAX_PAYLOAD_BYTES" default:"32768"`
	MaxStackBytes    int `envconfig:"MAX_STACK_BYTES" default:"8192"`
	MaxMetadataBytes int `envconfig:"MAX_METADATA_BYTES" default:"4096"`
	MaxMessageBytes  int `envconfig:"MAX_MESSAGE_BYTES" default:"2048"`
	MaxBatchSize     int `envconfig:"MAX_BATCH_SIZE" default:"50"`
	ChannelCapacity  int `envconfig:"CHANNEL_CAPACITY" default:"8192"`
}

// PipelineConfig controls the error pipeline worker's flush discipline (C5).
type PipelineConfig struct {
	FlushIntervalSecs   int `envconfig:"FLUSH_INTERVAL_SECS" default:"2"`
	FlushBatchSize      int `envconfig:"FLUSH_BATCH_SIZE" default:"500"`
	SampleReservoirSize int `envconfig:"SAMPLE_RESERVOIR_SIZE" default:"5"`
}

// RetentionConfig is carried for the (out-of-scope) retention-pruning
// collaborator's on-disk contract; the core never deletes rows itself.
type RetentionConfig struct {
	RawEventsDays     int `envconfig:"RAW_EVENTS_DAYS" default:"30"`
	PruneIntervalSecs int `envconfig:"PRUNE_INTERVAL_SECS" default:"3600"`
}

type AuthConfig struct {
	HMACSecret string `envconfig:"HMAC_SECRET"`
}

type AlertingConfig struct {
	CooldownSecs int `envconfig:"COOLDOWN_SECS" default:"300"`
}

// LLMTracingConfig controls the trace pipeline (C6/C7).
type LLMTracingConfig struct {
	Enabled               bool   `envconfig:"ENABLED" default:"true"`
	ChannelCapacity       int    `envconfig:"CHANNEL_CAPACITY" default:"4096"`
	FlushIntervalSecs     int    `envconfig:"FLUSH_INTERVAL_SECS" default:"2"`
	FlushBatchSize        int    `envconfig:"FLUSH_BATCH_SIZE" default:"200"`
	MaxSpansPerTrace      int    `envconfig:"MAX_SPANS_PER_TRACE" default:"100"`
	MaxBatchSize          int    `envconfig:"MAX_BATCH_SIZE" default:"50"`
	DefaultContentStorage string `envconfig:"DEFAULT_CONTENT_STORAGE" default:"none"`
}

// Load reads configuration from the environment (and an optional .env file)
// and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("signalkeep", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the security invariants documented for auth.hmac_secret:
// it must be set, non-placeholder, and at least 32 characters.
func (c *Config) Validate() error {
	if c.Auth.HMACSecret == "" || c.Auth.HMACSecret == "change-me-in-production" {
		return fmt.Errorf("auth.hmac_secret must be set to a strong, unique value " +
			"(SIGNALKEEP_AUTH_HMAC_SECRET)")
	}
	if len(c.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth.hmac_secret must be at least 32 characters")
	}
	return nil
}
