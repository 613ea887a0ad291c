package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/policyhub/pkg/policy"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Has reports whether a field error exists for the given field path.
func (e ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRegistry(&cfg.Registry)...)
	errs = append(errs, validateSeed(&cfg.Seed)...)
	errs = append(errs, validateTemplates(cfg.Templates)...)
	errs = append(errs, validateJournal(&cfg.Journal)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "must not be empty"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("must be in host:port form: %v", err),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}
	if cfg.MaxHeaderBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must be positive"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must be positive"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "must not be negative"})
	}
	if cfg.CORS.AllowCredentials {
		for _, origin := range cfg.CORS.AllowedOrigins {
			if origin == "*" {
				errs = append(errs, FieldError{
					Field:   "server.cors.allowed_origins",
					Message: "wildcard origin cannot be combined with allow_credentials",
				})
				break
			}
		}
	}

	return errs
}

func validateRegistry(cfg *RegistryConfig) []FieldError {
	var errs []FieldError

	if cfg.StreamBuffer < 1 {
		errs = append(errs, FieldError{Field: "registry.stream_buffer", Message: "must be at least 1"})
	}
	if cfg.StreamHeartbeat < 0 {
		errs = append(errs, FieldError{Field: "registry.stream_heartbeat", Message: "must not be negative"})
	}

	return errs
}

func validateSeed(cfg *SeedConfig) []FieldError {
	var errs []FieldError

	for i, p := range cfg.Paths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("seed.paths[%d]", i),
				Message: "must not be empty",
			})
		}
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{Field: "seed.debounce_interval", Message: "must not be negative"})
	}
	if cfg.Watch && len(cfg.Paths) == 0 {
		errs = append(errs, FieldError{Field: "seed.watch", Message: "requires at least one seed path"})
	}

	return errs
}

func validateTemplates(templates []policy.Template) []FieldError {
	var errs []FieldError

	seen := make(map[string]int, len(templates))
	for i := range templates {
		field := fmt.Sprintf("templates[%d]", i)
		if err := templates[i].Validate(); err != nil {
			errs = append(errs, FieldError{Field: field, Message: err.Error()})
			continue
		}
		if prev, dup := seen[templates[i].ID]; dup {
			errs = append(errs, FieldError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate template id %q (first defined at templates[%d])", templates[i].ID, prev),
			})
			continue
		}
		seen[templates[i].ID] = i
	}

	return errs
}

func validateJournal(cfg *JournalConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite", "sqlite3":
	default:
		errs = append(errs, FieldError{
			Field:   "journal.backend",
			Message: fmt.Sprintf("must be one of memory, sqlite, sqlite3 (got %q)", cfg.Backend),
		})
	}
	if cfg.Backend != "memory" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "journal.sqlite.path", Message: "must not be empty"})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "journal.sqlite.max_open_conns", Message: "must be at least 1"})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "journal.sqlite.max_idle_conns", Message: "must not be negative"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "journal.sqlite.busy_timeout", Message: "must not be negative"})
		}
	}
	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "journal.async_buffer", Message: "must be at least 1"})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "journal.write_timeout", Message: "must be positive"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "journal.retention.days", Message: "must not be negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "journal.retention.max_records", Message: "must not be negative"})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "journal.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error (got %q)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be json or text (got %q)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.IsEnabled() {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
		}
		if cfg.Metrics.Namespace == "" {
			errs = append(errs, FieldError{Field: "telemetry.metrics.namespace", Message: "must not be empty"})
		}
		for i := 1; i < len(cfg.Metrics.FanOutBuckets); i++ {
			if cfg.Metrics.FanOutBuckets[i] <= cfg.Metrics.FanOutBuckets[i-1] {
				errs = append(errs, FieldError{
					Field:   "telemetry.metrics.fanout_buckets",
					Message: "must be strictly increasing",
				})
				break
			}
		}
	}

	if cfg.Tracing.Enabled {
		errs = append(errs, validateTracing(&cfg.Tracing)...)
	}

	return errs
}

func validateTracing(cfg *TracingConfig) []FieldError {
	var errs []FieldError

	switch cfg.Sampler {
	case "always", "never", "ratio":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("must be always, never or ratio (got %q)", cfg.Sampler),
		})
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("must be between 0.0 and 1.0 (got %g)", cfg.SampleRatio),
		})
	}
	if cfg.Exporter != "otlp" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.exporter",
			Message: fmt.Sprintf("must be otlp (got %q)", cfg.Exporter),
		})
	}
	if cfg.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "must not be empty"})
	}
	if cfg.ServiceName == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.service_name", Message: "must not be empty"})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.timeout", Message: "must not be negative"})
	}

	return errs
}
