package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"weatherdash/internal/app"
)

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, MQTT subscriber and poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.logger.Info("starting", "app", appName, "version", version, "env", e.cfg.AppEnv)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, e.cfg, e.logger, version)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					e.logger.Error("close", "error", err)
				}
			}()

			if err := a.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			e.logger.Info("shutting down")
			return nil
		},
	}
}
