package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "POLICYHUB_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. Unknown fields are
// rejected. The result is not validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention POLICYHUB_SECTION_FIELD (e.g., POLICYHUB_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Values that fail to parse are ignored.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	env := envReader{getenv: getenv}

	// Server overrides
	env.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	env.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	env.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	env.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	env.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	env.integer("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	env.int64("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	env.boolPtr("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	env.list("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Registry overrides
	env.integer("REGISTRY_STREAM_BUFFER", &cfg.Registry.StreamBuffer)
	env.duration("REGISTRY_STREAM_HEARTBEAT", &cfg.Registry.StreamHeartbeat)

	// Seed overrides
	env.list("SEED_PATHS", &cfg.Seed.Paths)
	env.boolean("SEED_WATCH", &cfg.Seed.Watch)
	env.duration("SEED_DEBOUNCE_INTERVAL", &cfg.Seed.DebounceInterval)
	env.boolean("SEED_STRICT", &cfg.Seed.Strict)

	// Journal overrides
	env.boolean("JOURNAL_ENABLED", &cfg.Journal.Enabled)
	env.str("JOURNAL_BACKEND", &cfg.Journal.Backend)
	env.str("JOURNAL_SQLITE_PATH", &cfg.Journal.SQLite.Path)
	env.integer("JOURNAL_SQLITE_MAX_OPEN_CONNS", &cfg.Journal.SQLite.MaxOpenConns)
	env.integer("JOURNAL_SQLITE_MAX_IDLE_CONNS", &cfg.Journal.SQLite.MaxIdleConns)
	env.boolPtr("JOURNAL_SQLITE_WAL_MODE", &cfg.Journal.SQLite.WALMode)
	env.duration("JOURNAL_SQLITE_BUSY_TIMEOUT", &cfg.Journal.SQLite.BusyTimeout)
	env.boolean("JOURNAL_RESTORE", &cfg.Journal.Restore)
	env.integer("JOURNAL_ASYNC_BUFFER", &cfg.Journal.AsyncBuffer)
	env.duration("JOURNAL_WRITE_TIMEOUT", &cfg.Journal.WriteTimeout)
	env.integer("JOURNAL_RETENTION_DAYS", &cfg.Journal.Retention.Days)
	env.str("JOURNAL_RETENTION_PRUNE_SCHEDULE", &cfg.Journal.Retention.PruneSchedule)
	env.int64("JOURNAL_RETENTION_MAX_RECORDS", &cfg.Journal.Retention.MaxRecords)

	// Telemetry overrides
	env.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	env.boolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	env.str("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	env.str("TELEMETRY_METRICS_SUBSYSTEM", &cfg.Telemetry.Metrics.Subsystem)
	env.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	env.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	env.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
	env.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	env.str("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)
	env.boolean("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) lookup(key string) (string, bool) {
	val := e.getenv(EnvPrefix + key)
	return val, val != ""
}

func (e envReader) str(key string, dst *string) {
	if val, ok := e.lookup(key); ok {
		*dst = val
	}
}

func (e envReader) duration(key string, dst *time.Duration) {
	if val, ok := e.lookup(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func (e envReader) integer(key string, dst *int) {
	if val, ok := e.lookup(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func (e envReader) int64(key string, dst *int64) {
	if val, ok := e.lookup(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func (e envReader) float(key string, dst *float64) {
	if val, ok := e.lookup(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func (e envReader) boolean(key string, dst *bool) {
	if val, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func (e envReader) boolPtr(key string, dst **bool) {
	if val, ok := e.lookup(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}

// list splits a comma-separated value, dropping empty items.
func (e envReader) list(key string, dst *[]string) {
	val, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
