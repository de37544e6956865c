// Package cmd wires the dbrestore command line
package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"dbrestore/internal/config"
	"dbrestore/internal/logger"
)

var (
	cfg  *config.Config
	log  logger.Logger
	osFs afero.Fs = afero.NewOsFs()
)

var rootCmd = &cobra.Command{
	Use:   "dbrestore",
	Short: "Restore logical database backups and their storage objects",
	Long: `dbrestore restores logical backups into PostgreSQL.

A backup directory holds either an NDJSON dump (manifest.json, a cleaned
schema script and one data file per table) or a legacy SQL script, plus an
optional storage/ tree mirrored into object storage bucket by bucket.

Configuration comes from the environment, then .dbrestore.conf in the
current directory (or --config), then flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfg.NoColor {
			color.NoColor = true
		}

		var (
			local *config.LocalConfig
			err   error
		)
		if cfg.ConfigPath != "" {
			local, err = config.LoadLocalConfigFromPath(cfg.ConfigPath)
		} else {
			local, err = config.LoadLocalConfig()
		}
		if err != nil {
			return err
		}
		config.ApplyLocalConfig(cfg, local)

		level := cfg.LogLevel
		if cfg.Debug {
			level = "debug"
		}
		log = logger.New(level, cfg.LogFormat)
		return cfg.Validate()
	},
}

// Execute runs the root command with the process configuration
func Execute(ctx context.Context, c *config.Config, l logger.Logger) error {
	cfg = c
	log = l

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfg.ConfigPath, "config", "", "Path to a config file (default .dbrestore.conf)")
	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	f.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", cfg.Version, cfg.GitCommit, cfg.BuildTime)
	return rootCmd.ExecuteContext(ctx)
}
