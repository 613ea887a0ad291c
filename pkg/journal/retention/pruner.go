package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/policyhub/pkg/journal"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep changes.
	// 0 means keep changes forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// MaxRecords is the maximum number of changes to keep.
	// 0 means unlimited.
	MaxRecords int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
		MaxRecords:    0,
	}
}

// Metrics receives pruning measurements.
type Metrics interface {
	RecordPruned(reason string, n int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordPruned(string, int64) {}

// Option configures a Pruner.
type Option func(*Pruner)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(p *Pruner) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// Pruner enforces retention on a journal store.
type Pruner struct {
	store   journal.Store
	config  *Config
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(store journal.Store, config *Config, opts ...Option) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		store:   store,
		config:  config,
		metrics: noopMetrics{},
		logger:  slog.Default().With("component", "journal.retention"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the pruner configuration.
func (p *Pruner) Config() Config {
	return *p.config
}

// Prune deletes changes older than the retention period and then trims the
// history to the record cap. It returns the total number of deleted changes.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
		p.metrics.RecordPruned("age", deleted)
		p.logger.Debug("pruned changes by age",
			"deleted_count", deleted,
			"cutoff_time", cutoff,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.store.Trim(ctx, p.config.MaxRecords)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
		p.metrics.RecordPruned("max_records", deleted)
		p.logger.Debug("pruned changes by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	if totalDeleted > 0 {
		p.logger.Info("journal pruning completed",
			"total_deleted", totalDeleted,
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	}

	return totalDeleted, nil
}
