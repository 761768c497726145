package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/capecontrol/capecontrol-auth/internal/config"
	"github.com/capecontrol/capecontrol-auth/internal/database"
	"github.com/capecontrol/capecontrol-auth/internal/repository"
)

var migrateSweep bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the MySQL schema",
	Long:  "Apply the MySQL schema. With --sweep, also delete expired rows from the token ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())

		ctx := cmd.Context()
		db, err := database.Open(ctx, cfg.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("schema applied", "statements", len(database.Statements()))

		if migrateSweep {
			n, err := repository.NewTokenRepo(db).DeleteExpired(ctx, time.Now())
			if err != nil {
				return err
			}
			logger.Info("expired tokens removed", "rows", n)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateSweep, "sweep", false, "delete expired refresh and reset tokens")
	rootCmd.AddCommand(migrateCmd)
}
