package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/policyhub/pkg/cli"
	"mercator-hq/policyhub/pkg/config"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the policyhub server",
	Long: `Start the policyhub server with the specified configuration.

Startup order: configuration, logging, metrics, registry, template catalog,
journal (restore, then recording), seed files, retention scheduler, HTTP
server. SIGINT and SIGTERM shut down gracefully; SIGHUP reloads the seed
files.

Examples:
  # Start with defaults
  policyhub run

  # Start with custom config
  policyhub run --config /etc/policyhub/config.yaml

  # Override listen address
  policyhub run --listen 0.0.0.0:8080

  # Validate config without starting server
  policyhub run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	printBanner(cmd, cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintf(out, "✓ Registry ready (%d policies)\n", a.registry.Snapshot().Len())
	fmt.Fprintf(out, "✓ Server listening on %s\n", ln.Addr())
	fmt.Fprintf(out, "✓ Policies: http://%s/v1/policies\n", ln.Addr())
	if a.metrics.Enabled() {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", ln.Addr(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	go reloadOnSignal(ctx, a, logger)

	if err := a.serve(ctx, ln); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// reloadOnSignal reloads the seed files on every SIGHUP until ctx is done.
func reloadOnSignal(ctx context.Context, a *app, logger *slog.Logger) {
	hup, stop := cli.ReloadSignals()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("SIGHUP received, reloading seed files")
			if err := a.reload(ctx); err != nil {
				logger.Error("seed reload failed", "error", err)
			}
		}
	}
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Policyhub v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	if cfg.Seed.Enabled() {
		slog.Debug("seed files configured", "paths", cfg.Seed.Paths, "watch", cfg.Seed.Watch)
	}
	if cfg.Journal.Enabled {
		slog.Debug("journal enabled", "backend", cfg.Journal.Backend)
	}
}
