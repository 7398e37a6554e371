// Command chromatic simulates time-wavelength rainbows and exports,
// plots, stores and serves them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/chromatic/internal/config"
	"github.com/banshee-data/chromatic/internal/monitoring"
)

// app holds the state shared by every subcommand.
type app struct {
	verbose    bool
	configPath string
	logger     *zap.Logger
	newLogger  func(verbose bool) (*zap.Logger, error)
}

// loadConfig reads --config, or returns an empty config whose getters
// supply the defaults.
func (a *app) loadConfig() (*config.SimulationConfig, error) {
	if a.configPath == "" {
		return config.EmptySimulationConfig(), nil
	}
	cfg, err := config.LoadSimulationConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithLogger(monitoring.NewZapLogger)
}

func newRootCmdWithLogger(newLogger func(bool) (*zap.Logger, error)) *cobra.Command {
	a := &app{newLogger: newLogger}
	root := &cobra.Command{
		Use:           "chromatic",
		Short:         "Simulate and export time-wavelength flux grids",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.newLogger(a.verbose)
			if err != nil {
				return err
			}
			a.logger = logger
			monitoring.UseZap(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Simulation config file (.json, .yaml or .yml)")

	root.AddCommand(
		newSimulateCmd(a),
		newServeCmd(a),
		newMigrateCmd(),
		newFetchCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
