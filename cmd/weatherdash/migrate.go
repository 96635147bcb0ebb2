package main

import (
	"github.com/spf13/cobra"

	"weatherdash/internal/db"
	"weatherdash/internal/db/migrate"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(conn); err != nil {
					e.logger.Error("db close", "error", err)
				}
			}()
			if err := migrate.Run(cmd.Context(), conn, e.cfg.Tables); err != nil {
				return err
			}
			e.logger.Info("migrations applied", "driver", e.cfg.Driver)
			return nil
		},
	}
}
