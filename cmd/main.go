/**
 * @description
 * This is the main entry point for the membership scheduler.
 * `serve` runs the long-lived process: cron scheduler, renewal consumer and
 * operations HTTP server. `run <job>` executes a single maintenance job and exits.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/restrict-content-pro/membership-scheduler/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "membership-scheduler",
		Short:         "Scheduled maintenance jobs for membership subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config-path", ".", "directory containing an optional .env file")

	loadConfig := func() (*config.Config, error) {
		// Load .env file for local development.
		if err := godotenv.Load(); err != nil {
			logger.Debug("no .env file found, using environment variables")
		}
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newServeCmd(logger, loadConfig))
	root.AddCommand(newRunCmd(logger, loadConfig))
	return root
}

func newServeCmd(logger *slog.Logger, loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cron scheduler, renewal consumer and ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), logger, *cfg)
		},
	}
}

func newRunCmd(logger *slog.Logger, loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one maintenance job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"expired_members_check", "expiring_soon_notice", "member_counts_check"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			deps, err := bootstrap(ctx, logger, *cfg)
			if err != nil {
				return err
			}
			defer deps.close()

			return deps.jobs.Run(ctx, args[0])
		},
	}
}
