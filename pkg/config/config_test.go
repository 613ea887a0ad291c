package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/policyhub/pkg/policy"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policyhub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, DefaultStreamBuffer, cfg.Registry.StreamBuffer)
	assert.Equal(t, DefaultJournalBackend, cfg.Journal.Backend)
	assert.False(t, cfg.Journal.Enabled)
	assert.False(t, cfg.Seed.Enabled())
	assert.True(t, cfg.Server.CORS.IsEnabled())
	assert.True(t, cfg.Telemetry.Metrics.IsEnabled())
	assert.True(t, cfg.Journal.SQLite.WALEnabled())
	assert.Equal(t, DefaultFanOutBuckets, cfg.Telemetry.Metrics.FanOutBuckets)
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := Default()
	cfg.Server.ListenAddress = "0.0.0.0:9000"
	ApplyDefaults(cfg)
	ApplyDefaults(cfg)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddress)
	assert.Len(t, cfg.Server.CORS.AllowedOrigins, 1)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  cors:
    enabled: false
seed:
  paths: ["seeds/*.yaml"]
  watch: true
templates:
  - id: gmail
    name: Gmail
    description: Mail access
    providers:
      - name: google
        permissions:
          - scope: mail.read
journal:
  enabled: true
  backend: memory
  sqlite:
    wal_mode: false
telemetry:
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.ListenAddress)
	assert.False(t, cfg.Server.CORS.IsEnabled())
	assert.True(t, cfg.Seed.Enabled())
	assert.True(t, cfg.Seed.Watch)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "memory", cfg.Journal.Backend)
	assert.False(t, cfg.Journal.SQLite.WALEnabled())
	assert.False(t, cfg.Telemetry.Metrics.IsEnabled())

	require.Len(t, cfg.Templates, 1)
	tpl := cfg.Templates[0]
	assert.Equal(t, "gmail", tpl.ID)
	require.Len(t, tpl.Providers, 1)
	require.Len(t, tpl.Providers[0].Permissions, 1)
	assert.JSONEq(t, `{"scope":"mail.read"}`, tpl.Providers[0].Permissions[0].String())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "server:\n  listen: x\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `
journal:
  backend: postgres
telemetry:
  logging:
    level: loud
`))
		require.Error(t, err)
		var verr ValidationError
		require.ErrorAs(t, err, &verr)
		assert.True(t, verr.Has("journal.backend"))
		assert.True(t, verr.Has("telemetry.logging.level"))
	})
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:1111\"\n")

	t.Setenv("POLICYHUB_SERVER_LISTEN_ADDRESS", "127.0.0.1:2222")
	t.Setenv("POLICYHUB_SEED_PATHS", "a.yaml, b/**/*.yaml,")
	t.Setenv("POLICYHUB_JOURNAL_ENABLED", "true")
	t.Setenv("POLICYHUB_JOURNAL_BACKEND", "sqlite3")
	t.Setenv("POLICYHUB_JOURNAL_SQLITE_WAL_MODE", "false")
	t.Setenv("POLICYHUB_REGISTRY_STREAM_HEARTBEAT", "5s")
	t.Setenv("POLICYHUB_REGISTRY_STREAM_BUFFER", "not-a-number")

	cfg, err := LoadConfigWithEnvOverrides(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:2222", cfg.Server.ListenAddress)
	assert.Equal(t, []string{"a.yaml", "b/**/*.yaml"}, cfg.Seed.Paths)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "sqlite3", cfg.Journal.Backend)
	assert.False(t, cfg.Journal.SQLite.WALEnabled())
	assert.Equal(t, 5*time.Second, cfg.Registry.StreamHeartbeat)
	assert.Equal(t, DefaultStreamBuffer, cfg.Registry.StreamBuffer)
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("POLICYHUB_TELEMETRY_LOGGING_FORMAT", "text")

	cfg, err := LoadConfigWithEnvOverrides("")
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Telemetry.Logging.Format)
}

func TestLoadConfigWithEnvOverrides_Tracing(t *testing.T) {
	t.Setenv("POLICYHUB_TELEMETRY_TRACING_ENABLED", "true")
	t.Setenv("POLICYHUB_TELEMETRY_TRACING_SAMPLER", "ratio")
	t.Setenv("POLICYHUB_TELEMETRY_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("POLICYHUB_TELEMETRY_TRACING_ENDPOINT", "collector:4317")
	t.Setenv("POLICYHUB_TELEMETRY_TRACING_INSECURE", "true")

	cfg, err := LoadConfigWithEnvOverrides("")
	require.NoError(t, err)

	tr := cfg.Telemetry.Tracing
	assert.True(t, tr.Enabled)
	assert.InDelta(t, 0.25, tr.SampleRatio, 1e-9)
	assert.Equal(t, "collector:4317", tr.Endpoint)
	assert.True(t, tr.Insecure)
	assert.Equal(t, DefaultTracingService, tr.ServiceName)
	assert.Equal(t, DefaultTracingTimeout, tr.Timeout)
}

func TestValidate_TracingDisabledSkipsChecks(t *testing.T) {
	cfg := NewTestConfig().Build()
	cfg.Telemetry.Tracing.Sampler = "sometimes"
	assert.NoError(t, Validate(cfg))
}

func TestLoadConfigWithEnvOverrides_InvalidAfterOverride(t *testing.T) {
	t.Setenv("POLICYHUB_JOURNAL_RETENTION_PRUNE_SCHEDULE", "every day")

	_, err := LoadConfigWithEnvOverrides("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after environment overrides")
	assert.Contains(t, err.Error(), "journal.retention.prune_schedule")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Config
		field string
	}{
		{
			name:  "bad listen address",
			build: func() *Config { return NewTestConfig().WithListenAddress("8080").Build() },
			field: "server.listen_address",
		},
		{
			name: "credentials with wildcard origin",
			build: func() *Config {
				cfg := NewTestConfig().Build()
				cfg.Server.CORS.AllowCredentials = true
				return cfg
			},
			field: "server.cors.allowed_origins",
		},
		{
			name:  "watch without paths",
			build: func() *Config { return NewTestConfig().WithSeed(true).Build() },
			field: "seed.watch",
		},
		{
			name:  "empty seed path",
			build: func() *Config { return NewTestConfig().WithSeed(false, "a.yaml", " ").Build() },
			field: "seed.paths[1]",
		},
		{
			name:  "unknown journal backend",
			build: func() *Config { return NewTestConfig().WithJournal("bolt").Build() },
			field: "journal.backend",
		},
		{
			name: "template without id",
			build: func() *Config {
				return NewTestConfig().WithTemplate(policy.Template{Name: "x"}).Build()
			},
			field: "templates[0]",
		},
		{
			name: "duplicate template id",
			build: func() *Config {
				return NewTestConfig().
					WithTemplate(policy.Template{ID: "a"}).
					WithTemplate(policy.Template{ID: "a"}).
					Build()
			},
			field: "templates[1].id",
		},
		{
			name: "unordered fanout buckets",
			build: func() *Config {
				cfg := NewTestConfig().Build()
				cfg.Telemetry.Metrics.FanOutBuckets = []float64{0.1, 0.01}
				return cfg
			},
			field: "telemetry.metrics.fanout_buckets",
		},
		{
			name: "tracing ratio out of range",
			build: func() *Config {
				cfg := NewTestConfig().Build()
				cfg.Telemetry.Tracing.Enabled = true
				cfg.Telemetry.Tracing.SampleRatio = 1.5
				return cfg
			},
			field: "telemetry.tracing.sample_ratio",
		},
		{
			name: "tracing unknown sampler",
			build: func() *Config {
				cfg := NewTestConfig().Build()
				cfg.Telemetry.Tracing.Enabled = true
				cfg.Telemetry.Tracing.Sampler = "sometimes"
				return cfg
			},
			field: "telemetry.tracing.sampler",
		},
		{
			name: "tracing unknown exporter",
			build: func() *Config {
				cfg := NewTestConfig().Build()
				cfg.Telemetry.Tracing.Enabled = true
				cfg.Telemetry.Tracing.Exporter = "zipkin"
				return cfg
			},
			field: "telemetry.tracing.exporter",
		},
		{
			name:  "negative heartbeat",
			build: func() *Config { return NewTestConfig().WithStreamHeartbeat(-time.Second).Build() },
			field: "registry.stream_heartbeat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.build())
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has(tt.field), "expected error for %s, got %v", tt.field, verr)
		})
	}
}

func TestValidate_MemoryBackendSkipsSQLite(t *testing.T) {
	cfg := NewTestConfig().WithJournal("memory").Build()
	cfg.Journal.SQLite.Path = ""
	assert.NoError(t, Validate(cfg))
}

func TestValidationError_Format(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	assert.Equal(t, "configuration validation failed: a: bad", single.Error())

	multi := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	assert.Contains(t, multi.Error(), "with 2 errors")
	assert.Contains(t, multi.Error(), "  - b: worse")
}

func TestLoadConfigWithEnvOverrides_MissingFile(t *testing.T) {
	_, err := LoadConfigWithEnvOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
