package main

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"weatherdash/internal/config"
	"weatherdash/internal/logging"
)

// env is filled by the root command before any subcommand runs.
type env struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var envFile string

	root := &cobra.Command{
		Use:           appName,
		Short:         "Weather and device telemetry ingestion backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logging.New(cfg, version, appName)
			slog.SetDefault(e.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(e),
		newIngestCmd(e),
		newMigrateCmd(e),
		newWatchCmd(e),
	)
	return root
}
