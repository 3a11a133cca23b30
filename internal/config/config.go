// Package config provides hierarchical configuration loading for codebase-gen.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the generation server.
type Config struct {
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Generation Generation `yaml:"generation"`
	Backend    Backend    `yaml:"backend"`
	Breaker    Breaker    `yaml:"breaker"`
	Storage    Storage    `yaml:"storage"`
	NATS       NATS       `yaml:"nats"`
	Templates  Templates  `yaml:"templates"`
	Telemetry  Telemetry  `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port           string        `yaml:"port"`
	CORSOrigin     string        `yaml:"cors_origin"`
	PublicURL      string        `yaml:"public_url"`      // Prefix for archive URLs; empty yields relative URLs
	StaticDir      string        `yaml:"static_dir"`      // Web client directory, served at / when present
	RequestTimeout time.Duration `yaml:"request_timeout"` // Max wait for the inbound request frame
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Generation holds job orchestration limits and policy.
type Generation struct {
	MaxWorkers       int           `yaml:"max_workers"`        // Upper bound for a request's workerCount
	MaxJobs          int           `yaml:"max_jobs"`           // Concurrently active jobs, process-wide
	DefaultModel     string        `yaml:"default_model"`      // Used when a request omits the model
	UnitTimeout      time.Duration `yaml:"unit_timeout"`       // Bounded wait for one backend call
	UnitRetries      int           `yaml:"unit_retries"`       // Extra attempts for retryable unit failures
	RetryBackoff     time.Duration `yaml:"retry_backoff"`      // First retry delay, doubled per attempt
	ReportUnitErrors bool          `yaml:"report_unit_errors"` // Emit a non-terminal error per failed unit
}

// Backend holds the OpenAI-compatible generation backend configuration.
type Backend struct {
	URL           string        `yaml:"url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"` // Backend calls in flight across all jobs
}

// Breaker holds circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Storage holds archive store configuration.
type Storage struct {
	Driver     string        `yaml:"driver"` // "fs" | "nats"
	Dir        string        `yaml:"dir"`
	NATSBucket string        `yaml:"nats_bucket"`
	CacheMB    int64         `yaml:"cache_mb"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// NATS holds NATS JetStream configuration.
type NATS struct {
	URL string `yaml:"url"`
}

// Templates holds on-disk catalog override locations.
type Templates struct {
	Dir       string `yaml:"dir"`
	PromptDir string `yaml:"prompt_dir"`
}

// Telemetry holds OpenTelemetry exporter configuration. An empty endpoint
// keeps the global no-op providers.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:           "3000",
			CORSOrigin:     "http://localhost:3000",
			StaticDir:      "web/static",
			RequestTimeout: 30 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "codebase-gen",
		},
		Generation: Generation{
			MaxWorkers:   16,
			MaxJobs:      8,
			DefaultModel: "gpt-4o-mini",
			UnitTimeout:  120 * time.Second,
			UnitRetries:  0,
			RetryBackoff: time.Second,
		},
		Backend: Backend{
			URL:           "https://api.openai.com/v1",
			Timeout:       180 * time.Second,
			MaxConcurrent: 32,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Storage: Storage{
			Driver:     "fs",
			Dir:        "./output",
			NATSBucket: "codebase-archives",
			CacheMB:    64,
			CacheTTL:   10 * time.Minute,
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Templates: Templates{
			Dir:       "./templates",
			PromptDir: "./templates/prompts",
		},
	}
}
