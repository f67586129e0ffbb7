/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/mq"
	"github.com/jjudge-oj/identity/internal/notify"
	"github.com/jjudge-oj/identity/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// workerCmd consumes notifications published by the API server and mails
// them.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued notification emails",
	Long: `Consumes notifications from RabbitMQ or Pub/Sub and sends them over SMTP.
Requires NOTIFY_TRANSPORT=rabbitmq or NOTIFY_TRANSPORT=pubsub.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if cfg.Notify.Transport == config.TransportInline {
			return errors.New("worker needs NOTIFY_TRANSPORT=rabbitmq or pubsub")
		}

		ctx := cmd.Context()
		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("close queue", zap.Error(err))
			}
		}()

		mailer, err := server.NewMailer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = mailer.Close() }()

		worker := notify.NewWorker(queue, cfg.Notify.Channel, mailer, logger)
		if err := worker.Run(ctx); err != nil {
			return fmt.Errorf("worker stopped: %w", err)
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
