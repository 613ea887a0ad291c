package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/journal"
	"mercator-hq/policyhub/pkg/journal/retention"
	"mercator-hq/policyhub/pkg/policy"
	"mercator-hq/policyhub/pkg/policy/catalog"
	"mercator-hq/policyhub/pkg/policy/registry"
	"mercator-hq/policyhub/pkg/policy/seed"
	"mercator-hq/policyhub/pkg/server"
	"mercator-hq/policyhub/pkg/telemetry/metrics"
	"mercator-hq/policyhub/pkg/telemetry/tracing"
)

// app is the assembled policyhub process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	registry *registry.Registry
	catalog  *catalog.Catalog

	store     journal.Store
	recorder  *journal.Recorder
	scheduler *retention.Scheduler

	seeder  *seed.Seeder
	watcher *seed.Watcher

	server *server.Server
}

// newApp builds every component in dependency order: metrics, tracer,
// registry, catalog, journal (restore, then recorder), seeds, server.
// Nothing runs in the background until serve is called.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if a.tracer.Enabled() {
		logger.Info("tracing enabled",
			"endpoint", cfg.Telemetry.Tracing.Endpoint,
			"sampler", cfg.Telemetry.Tracing.Sampler,
		)
	}
	a.registry = registry.New(
		registry.WithLogger(logger),
		registry.WithInstrumentation(a.metrics.Policies()),
	)

	a.catalog = catalog.New()
	if len(cfg.Templates) > 0 {
		templates := make([]*policy.Template, len(cfg.Templates))
		for i := range cfg.Templates {
			templates[i] = &cfg.Templates[i]
		}
		if err := a.catalog.RegisterMultiple(templates); err != nil {
			return nil, fmt.Errorf("failed to register templates: %w", err)
		}
		logger.Info("templates registered", "count", a.catalog.Count(), "version", a.catalog.Version())
	}

	if cfg.Journal.Enabled {
		if err := a.openJournal(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Seed.Enabled() {
		if err := a.seed(ctx); err != nil {
			return nil, err
		}
	}

	deps := server.Dependencies{
		Registry: a.registry,
		Catalog:  a.catalog,
		Journal:  a.store,
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Logger:   logger,
	}
	a.server = server.NewServer(cfg, deps)

	return a, nil
}

func (a *app) openJournal(ctx context.Context) error {
	cfg := a.cfg.Journal

	store, err := journal.Open(&cfg, journal.WithSQLTracer(a.tracer.Named("journal")))
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	a.store = store

	if cfg.Restore {
		n, err := journal.Restore(ctx, store, a.registry)
		if err != nil {
			return err
		}
		a.logger.Info("registry restored from journal", "policies", n)
	}

	// Attached after restore so the restored mapping is the baseline.
	a.recorder = journal.NewRecorder(store, &journal.RecorderConfig{
		AsyncBuffer:  cfg.AsyncBuffer,
		WriteTimeout: cfg.WriteTimeout,
	},
		journal.WithMetrics(a.metrics.Journal()),
		journal.WithLogger(a.logger),
		journal.WithTracer(a.tracer.Named("journal")),
	)
	a.recorder.Attach(a.registry)

	pruner := retention.NewPruner(store, &retention.Config{
		RetentionDays: cfg.Retention.Days,
		PruneSchedule: cfg.Retention.PruneSchedule,
		MaxRecords:    cfg.Retention.MaxRecords,
	}, retention.WithMetrics(a.metrics.Journal()))
	a.scheduler = retention.NewScheduler(pruner)

	a.logger.Info("journal enabled", "backend", cfg.Backend, "restore", cfg.Restore)
	return nil
}

func (a *app) seed(ctx context.Context) error {
	cfg := a.cfg.Seed

	loader, err := seed.NewLoader(cfg.Paths, seed.WithStrict(cfg.Strict), seed.WithLoaderLogger(a.logger))
	if err != nil {
		return err
	}
	a.seeder = seed.NewSeeder(a.registry, loader, a.logger)

	res, err := a.seeder.Seed(ctx)
	if err != nil && (cfg.Strict || res == nil) {
		return fmt.Errorf("failed to load seed files: %w", err)
	}
	if err != nil {
		a.logger.Warn("some seed files were skipped", "error", err, "failed", res.Failed)
	}

	if cfg.Watch {
		a.watcher, err = seed.NewWatcher(&seed.WatcherConfig{
			Patterns:         cfg.Paths,
			DebounceInterval: cfg.DebounceInterval,
			SkipHidden:       true,
		}, a.logger)
		if err != nil {
			return err
		}
	}
	return nil
}

// reload re-reads the seed files. It is a no-op without seeds.
func (a *app) reload(ctx context.Context) error {
	if a.seeder == nil {
		return nil
	}
	_, err := a.seeder.Reload(ctx)
	return err
}

// serve runs the HTTP server on ln together with the seed watcher and the
// retention scheduler until ctx is cancelled.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Watch(ctx, a.reload)
		})
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return a.server.Serve(ctx, ln)
	})

	return g.Wait()
}

// close releases every component in reverse start order.
func (a *app) close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Telemetry.Tracing.Timeout)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	return errors.Join(errs...)
}
