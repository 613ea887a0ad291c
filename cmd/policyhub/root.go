package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/policyhub/pkg/cli"
	"mercator-hq/policyhub/pkg/config"
	"mercator-hq/policyhub/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "policyhub",
	Short: "Policyhub - observable policy state registry",
	Long: `Policyhub keeps the activation mode of every policy (disabled, readonly or
full) in an in-process registry and publishes each change to its subscribers.

It provides:
  - An HTTP API to read, set, patch and remove policy states
  - A server-sent event stream of registry snapshots
  - YAML seed files, hot-reloaded on change or SIGHUP
  - A change journal (memory or SQLite) with retention pruning
  - Prometheus metrics and structured logs`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and POLICYHUB_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration named by --config and applies
// environment overrides. An empty --config starts from defaults.
func loadConfig() (*config.Config, error) {
	return config.LoadConfigWithEnvOverrides(cfgFile)
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lc := logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		Writer:    w,
	}
	if verbose {
		lc.Level = "debug"
	}
	return logging.New(lc)
}

func printError(w io.Writer, err error) {
	if fields := cli.ConfigErrors(err); len(fields) > 0 {
		fmt.Fprintln(w, "✗ Configuration is invalid:")
		for _, fe := range fields {
			fmt.Fprintf(w, "  - %s: %s\n", fe.Field, fe.Message)
		}
		return
	}
	fmt.Fprintf(w, "✗ %v\n", err)
}
