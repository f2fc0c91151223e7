package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/radar-data-cache/internal/config"
	"github.com/i474232898/radar-data-cache/internal/logging"
)

// commandContext carries state shared by all subcommands.
type commandContext struct {
	configFlag *string
	cfg        *config.AppConfig
	logger     *slog.Logger
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "radar-data-cache",
		Short:         "Keep the newest FMI radar composites on disk and serve them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (overrides RADAR_CONFIG_FILE)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newAvailableCommand(ctx))

	return rootCmd
}

func (c *commandContext) load() error {
	if c.cfg != nil {
		return nil
	}
	if *c.configFlag != "" {
		if err := os.Setenv("RADAR_CONFIG_FILE", *c.configFlag); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	c.cfg = cfg
	c.logger = logger
	return nil
}

// httpClient is the shared client for outbound FMI calls.
func (c *commandContext) httpClient() *http.Client {
	return &http.Client{Timeout: c.cfg.HTTPTimeout}
}
