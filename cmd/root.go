package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tablemesh/tablemesh-engine/pkg/config"
	"github.com/tablemesh/tablemesh-engine/pkg/logging"
	"github.com/tablemesh/tablemesh-engine/pkg/metadata"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath   string
	metadataPath string
	logLevel     string
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tablemesh",
		Short:         "Relationship resolution and intent repair engine",
		Long:          "tablemesh repairs structured query intents against schema metadata and emits SQL.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&metadataPath, "metadata", "", "path to the metadata snapshot (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newGraphCmd())
	return rootCmd
}

// setup loads configuration, the logger, and the metadata snapshot shared by
// every subcommand.
func setup() (*config.Config, *zap.Logger, *metadata.Snapshot, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, nil, nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(cfg.Env, level)
	if err != nil {
		return nil, nil, nil, err
	}

	path := cfg.MetadataPath
	if metadataPath != "" {
		path = metadataPath
	}
	snap, err := metadata.LoadSnapshot(path)
	if err != nil {
		return nil, nil, nil, err
	}

	logger.Debug("Loaded metadata snapshot",
		zap.String("path", path), zap.Int("tables", len(snap.Tables)))
	return cfg, logger, snap, nil
}
