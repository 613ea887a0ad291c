package config

import (
	"time"

	"mercator-hq/policyhub/pkg/policy"
)

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with defaults applied.
func NewTestConfig() *ConfigBuilder {
	var cfg Config
	ApplyDefaults(&cfg)
	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithJournal enables the journal with the given backend.
func (b *ConfigBuilder) WithJournal(backend string) *ConfigBuilder {
	b.cfg.Journal.Enabled = true
	b.cfg.Journal.Backend = backend
	return b
}

// WithSeed sets seed paths and watch mode.
func (b *ConfigBuilder) WithSeed(watch bool, paths ...string) *ConfigBuilder {
	b.cfg.Seed.Paths = paths
	b.cfg.Seed.Watch = watch
	return b
}

// WithTemplate appends a template.
func (b *ConfigBuilder) WithTemplate(t policy.Template) *ConfigBuilder {
	b.cfg.Templates = append(b.cfg.Templates, t)
	return b
}

// WithStreamHeartbeat sets the stream heartbeat.
func (b *ConfigBuilder) WithStreamHeartbeat(d time.Duration) *ConfigBuilder {
	b.cfg.Registry.StreamHeartbeat = d
	return b
}
