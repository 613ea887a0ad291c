package config

import (
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// Config is the root configuration structure for policyhub.
// It contains all configuration sections for the HTTP server, the policy
// registry, seed files, templates, the change journal and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Registry contains settings for the policy registry and its streaming
	// subscribers.
	Registry RegistryConfig `yaml:"registry"`

	// Seed contains configuration for seed files that populate the registry
	// at startup.
	Seed SeedConfig `yaml:"seed"`

	// Templates declares the policy templates known to the process.
	Templates []policy.Template `yaml:"templates"`

	// Journal contains configuration for the change journal including
	// backend selection, restore-on-start and retention.
	Journal JournalConfig `yaml:"journal"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Event streams clear this deadline for themselves.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of request bodies accepted by write
	// endpoints.
	// Default: 65536 (64KB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "PUT", "PATCH", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for the preflight cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials are allowed.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// IsEnabled reports whether CORS is enabled, treating an unset value as true.
func (c CORSConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RegistryConfig contains settings for the policy registry.
type RegistryConfig struct {
	// StreamBuffer is the number of snapshots buffered per event-stream
	// client. A client that falls further behind only receives the latest
	// snapshot.
	// Default: 16
	StreamBuffer int `yaml:"stream_buffer"`

	// StreamHeartbeat is the interval between keep-alive comments sent on
	// idle event streams.
	// Default: 30s
	StreamHeartbeat time.Duration `yaml:"stream_heartbeat"`
}

// SeedConfig contains configuration for seed files.
type SeedConfig struct {
	// Paths lists file paths or doublestar patterns
	// (e.g. "policies/**/*.yaml"). Seeding is disabled when empty.
	Paths []string `yaml:"paths"`

	// Watch enables re-applying seeds when matching files change.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period after a file event before seeds
	// are reloaded.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Strict makes any invalid seed file abort the whole load. When false,
	// invalid files are skipped and logged.
	// Default: false
	Strict bool `yaml:"strict"`
}

// Enabled reports whether any seed path is configured.
func (c SeedConfig) Enabled() bool {
	return len(c.Paths) > 0
}

// JournalConfig contains configuration for the change journal.
type JournalConfig struct {
	// Enabled controls whether state changes are recorded.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage backend.
	// Options: "memory", "sqlite" (pure Go), "sqlite3" (cgo)
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains settings shared by the "sqlite" and "sqlite3" backends.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Restore loads the last recorded mapping into the registry at startup,
	// before seed files are applied.
	// Default: false
	Restore bool `yaml:"restore"`

	// AsyncBuffer is the number of change batches queued for the writer.
	// Batches arriving while the queue is full are dropped and counted.
	// Default: 1024
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single append to the store.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention contains pruning settings.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/journal.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 2
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// WALEnabled reports whether WAL mode is on, treating an unset value as true.
func (c SQLiteConfig) WALEnabled() bool {
	return c.WALMode == nil || *c.WALMode
}

// RetentionConfig contains journal retention configuration.
type RetentionConfig struct {
	// Days is the number of days to keep change records. 0 keeps them forever.
	// Default: 30
	Days int `yaml:"days"`

	// PruneSchedule is a standard cron expression. Empty disables scheduled
	// pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`

	// MaxRecords caps the number of change records. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "policyhub"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: ""
	Subsystem string `yaml:"subsystem"`

	// FanOutBuckets are histogram buckets (seconds) for observer fan-out
	// latency.
	// Default: 10µs .. 100ms
	FanOutBuckets []float64 `yaml:"fanout_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are recorded and exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy for new traces. Requests
	// that carry a traceparent follow the caller's decision.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Exporter determines the span exporter.
	// Options: "otlp"
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service.name resource attribute.
	// Default: "policyhub"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS towards the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether metrics are on, treating an unset value as true.
func (c MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
