package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 65536
	DefaultCORSMaxAge      = 3600

	// Registry defaults
	DefaultStreamBuffer    = 16
	DefaultStreamHeartbeat = 30 * time.Second

	// Seed defaults
	DefaultSeedDebounce = 200 * time.Millisecond

	// Journal defaults
	DefaultJournalBackend         = "sqlite"
	DefaultJournalSQLitePath      = "data/journal.db"
	DefaultJournalMaxOpenConns    = 4
	DefaultJournalMaxIdleConns    = 2
	DefaultJournalBusyTimeout     = 5 * time.Second
	DefaultJournalAsyncBuffer     = 1024
	DefaultJournalWriteTimeout    = 5 * time.Second
	DefaultJournalRetentionDays   = 30
	DefaultJournalPruneSchedule   = "0 3 * * *"
	DefaultJournalRetentionMaxRec = int64(0)

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "policyhub"
	DefaultTracingSampler   = "ratio"
	DefaultTracingRatio     = 0.1
	DefaultTracingExporter  = "otlp"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingService   = "policyhub"
	DefaultTracingTimeout   = 10 * time.Second
)

// DefaultFanOutBuckets covers observer fan-out from 10µs to 100ms.
var DefaultFanOutBuckets = []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Server.CORS)

	// Registry defaults
	if cfg.Registry.StreamBuffer == 0 {
		cfg.Registry.StreamBuffer = DefaultStreamBuffer
	}
	if cfg.Registry.StreamHeartbeat == 0 {
		cfg.Registry.StreamHeartbeat = DefaultStreamHeartbeat
	}

	// Seed defaults
	if cfg.Seed.DebounceInterval == 0 {
		cfg.Seed.DebounceInterval = DefaultSeedDebounce
	}

	// Journal defaults
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = DefaultJournalBackend
	}
	if cfg.Journal.SQLite.Path == "" {
		cfg.Journal.SQLite.Path = DefaultJournalSQLitePath
	}
	if cfg.Journal.SQLite.MaxOpenConns == 0 {
		cfg.Journal.SQLite.MaxOpenConns = DefaultJournalMaxOpenConns
	}
	if cfg.Journal.SQLite.MaxIdleConns == 0 {
		cfg.Journal.SQLite.MaxIdleConns = DefaultJournalMaxIdleConns
	}
	if cfg.Journal.SQLite.BusyTimeout == 0 {
		cfg.Journal.SQLite.BusyTimeout = DefaultJournalBusyTimeout
	}
	if cfg.Journal.AsyncBuffer == 0 {
		cfg.Journal.AsyncBuffer = DefaultJournalAsyncBuffer
	}
	if cfg.Journal.WriteTimeout == 0 {
		cfg.Journal.WriteTimeout = DefaultJournalWriteTimeout
	}
	if cfg.Journal.Retention.Days == 0 {
		cfg.Journal.Retention.Days = DefaultJournalRetentionDays
	}
	if cfg.Journal.Retention.PruneSchedule == "" {
		cfg.Journal.Retention.PruneSchedule = DefaultJournalPruneSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.FanOutBuckets) == 0 {
		cfg.Telemetry.Metrics.FanOutBuckets = append([]float64(nil), DefaultFanOutBuckets...)
	}
	applyTracingDefaults(&cfg.Telemetry.Tracing)
}

func applyTracingDefaults(t *TracingConfig) {
	if t.Sampler == "" {
		t.Sampler = DefaultTracingSampler
	}
	if t.SampleRatio == 0 && t.Sampler == "ratio" {
		t.SampleRatio = DefaultTracingRatio
	}
	if t.Exporter == "" {
		t.Exporter = DefaultTracingExporter
	}
	if t.Endpoint == "" {
		t.Endpoint = DefaultTracingEndpoint
	}
	if t.ServiceName == "" {
		t.ServiceName = DefaultTracingService
	}
	if t.Timeout == 0 {
		t.Timeout = DefaultTracingTimeout
	}
}

// applyCORSDefaults fills in CORS lists that were left empty.
func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "X-Request-ID"}
	}
	if len(cors.ExposedHeaders) == 0 {
		cors.ExposedHeaders = []string{"X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// Default returns a configuration with every default applied. It is valid as
// is and is used when no configuration file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
