package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capecontrol/capecontrol-auth/internal/config"
	"github.com/capecontrol/capecontrol-auth/internal/queue"
)

var mailerOutDir string

var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Consume password reset events and write them to the mail log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.RabbitURL == "" {
			return errors.New("RABBITMQ_URL is required for the mailer")
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = queue.StartResetMailConsumer(ctx, cfg.RabbitURL, mailerOutDir, logger)
		if errors.Is(err, ctx.Err()) {
			logger.Info("mailer stopped")
			return nil
		}
		return err
	},
}

func init() {
	mailerCmd.Flags().StringVar(&mailerOutDir, "out", "logs", "directory for "+queue.MailLogFile)
	rootCmd.AddCommand(mailerCmd)
}
