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
const DefaultConfigFile = "pricescout.yaml"

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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
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
	setString(&cfg.Server.Port, "PRICESCOUT_PORT")
	setString(&cfg.Server.CORSOrigin, "PRICESCOUT_CORS_ORIGIN")

	setString(&cfg.Store.Backend, "PRICESCOUT_STORE_BACKEND")
	setDuration(&cfg.Store.TTL, "PRICESCOUT_STORE_TTL")
	setInt64(&cfg.Store.L1MaxSizeMB, "PRICESCOUT_STORE_L1_SIZE_MB")
	setString(&cfg.Store.Bucket, "PRICESCOUT_STORE_BUCKET")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PRICESCOUT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PRICESCOUT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PRICESCOUT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PRICESCOUT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PRICESCOUT_PG_HEALTH_CHECK")
	setDuration(&cfg.Postgres.JanitorInterval, "PRICESCOUT_PG_JANITOR_INTERVAL")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Google.APIKey, "GOOGLE_API_KEY")
	setString(&cfg.Google.EngineID, "GOOGLE_SEARCH_ENGINE_ID")
	setString(&cfg.Google.Endpoint, "PRICESCOUT_GOOGLE_ENDPOINT")
	setInt(&cfg.Google.MaxResults, "PRICESCOUT_GOOGLE_MAX_RESULTS")

	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "PRICESCOUT_GEMINI_MODEL")
	setString(&cfg.Gemini.Endpoint, "PRICESCOUT_GEMINI_ENDPOINT")

	setDuration(&cfg.Aggregator.GlobalDeadline, "PRICESCOUT_AGG_GLOBAL_DEADLINE")
	setDuration(&cfg.Aggregator.SourceTimeout, "PRICESCOUT_AGG_SOURCE_TIMEOUT")
	setInt64(&cfg.Aggregator.MaxInFlight, "PRICESCOUT_AGG_MAX_IN_FLIGHT")

	setString(&cfg.Logging.Level, "PRICESCOUT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PRICESCOUT_LOG_SERVICE")

	setInt(&cfg.Breaker.MaxFailures, "PRICESCOUT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PRICESCOUT_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "PRICESCOUT_RATE_RPS")
	setInt(&cfg.Rate.Burst, "PRICESCOUT_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "PRICESCOUT_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "PRICESCOUT_RATE_MAX_IDLE_TIME")

	setBool(&cfg.Telemetry.Enabled, "PRICESCOUT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set and consistent.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres backend")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case "tiered":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for the tiered backend")
		}
		if cfg.Store.Bucket == "" {
			return errors.New("store.bucket is required for the tiered backend")
		}
	default:
		return fmt.Errorf("store.backend must be memory, postgres or tiered, got %q", cfg.Store.Backend)
	}

	if cfg.Store.TTL <= 0 {
		return errors.New("store.ttl must be positive")
	}
	if cfg.Aggregator.GlobalDeadline <= 0 {
		return errors.New("aggregator.global_deadline must be positive")
	}
	if cfg.Aggregator.SourceTimeout <= 0 {
		return errors.New("aggregator.source_timeout must be positive")
	}
	if cfg.Aggregator.MaxInFlight < 1 {
		return errors.New("aggregator.max_in_flight must be >= 1")
	}
	if cfg.Google.MaxResults < 1 {
		return errors.New("google.max_results must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
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

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
