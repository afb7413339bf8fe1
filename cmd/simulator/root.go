package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-testbed/internal/config"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "simulator",
	Short: "LEO mega-constellation testbed",
	Long: `simulator propagates a satellite constellation, maintains inter-satellite
and ground links with a topology protocol, and answers routing and
deployment queries against the resulting network.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: "sim", Title: "Simulation Commands"})
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// loadConfig reads --config, or the defaults when it is unset, and applies
// flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath == "" {
		cfg = config.Default()
		err = cfg.Validate()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	log, err := logging.New(cfg.Logger())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

func setup(ctx context.Context) (*config.Config, logging.Logger, context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, ctx, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, ctx, err
	}
	return cfg, log, logging.ContextWithLogger(ctx, log), nil
}
