package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "codebasegen.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CODEBASEGEN_PORT")
	setString(&cfg.Server.CORSOrigin, "CODEBASEGEN_CORS_ORIGIN")
	setString(&cfg.Server.PublicURL, "CODEBASEGEN_PUBLIC_URL")
	setString(&cfg.Server.StaticDir, "CODEBASEGEN_STATIC_DIR")
	setDuration(&cfg.Server.RequestTimeout, "CODEBASEGEN_REQUEST_TIMEOUT")
	setString(&cfg.Logging.Level, "CODEBASEGEN_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CODEBASEGEN_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CODEBASEGEN_LOG_ASYNC")

	// Generation
	setInt(&cfg.Generation.MaxWorkers, "CODEBASEGEN_MAX_WORKERS")
	setInt(&cfg.Generation.MaxJobs, "CODEBASEGEN_MAX_JOBS")
	setString(&cfg.Generation.DefaultModel, "CODEBASEGEN_DEFAULT_MODEL")
	setDuration(&cfg.Generation.UnitTimeout, "CODEBASEGEN_UNIT_TIMEOUT")
	setInt(&cfg.Generation.UnitRetries, "CODEBASEGEN_UNIT_RETRIES")
	setDuration(&cfg.Generation.RetryBackoff, "CODEBASEGEN_RETRY_BACKOFF")
	setBool(&cfg.Generation.ReportUnitErrors, "CODEBASEGEN_REPORT_UNIT_ERRORS")

	// Backend. OPENAI_KEY is the variable older .env files use.
	setString(&cfg.Backend.URL, "CODEBASEGEN_BACKEND_URL")
	setString(&cfg.Backend.APIKey, "OPENAI_KEY")
	setString(&cfg.Backend.APIKey, "CODEBASEGEN_BACKEND_API_KEY")
	setDuration(&cfg.Backend.Timeout, "CODEBASEGEN_BACKEND_TIMEOUT")
	setInt(&cfg.Backend.MaxConcurrent, "CODEBASEGEN_BACKEND_MAX_CONCURRENT")
	setInt(&cfg.Breaker.MaxFailures, "CODEBASEGEN_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CODEBASEGEN_BREAKER_TIMEOUT")

	// Storage
	setString(&cfg.Storage.Driver, "CODEBASEGEN_STORAGE_DRIVER")
	setString(&cfg.Storage.Dir, "CODEBASEGEN_STORAGE_DIR")
	setString(&cfg.Storage.NATSBucket, "CODEBASEGEN_STORAGE_NATS_BUCKET")
	setInt64(&cfg.Storage.CacheMB, "CODEBASEGEN_STORAGE_CACHE_MB")
	setDuration(&cfg.Storage.CacheTTL, "CODEBASEGEN_STORAGE_CACHE_TTL")
	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Templates.Dir, "CODEBASEGEN_TEMPLATES_DIR")
	setString(&cfg.Templates.PromptDir, "CODEBASEGEN_PROMPTS_DIR")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "CODEBASEGEN_OTLP_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Generation.MaxWorkers < 1 {
		return errors.New("generation.max_workers must be >= 1")
	}
	if cfg.Generation.MaxJobs < 1 {
		return errors.New("generation.max_jobs must be >= 1")
	}
	if cfg.Generation.UnitTimeout <= 0 {
		return errors.New("generation.unit_timeout must be > 0")
	}
	if cfg.Generation.UnitRetries < 0 {
		return errors.New("generation.unit_retries must be >= 0")
	}
	if cfg.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	if cfg.Backend.MaxConcurrent < 1 {
		return errors.New("backend.max_concurrent must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch cfg.Storage.Driver {
	case "fs":
		if cfg.Storage.Dir == "" {
			return errors.New("storage.dir is required for the fs driver")
		}
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the nats driver")
		}
		if cfg.Storage.NATSBucket == "" {
			return errors.New("storage.nats_bucket is required for the nats driver")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
