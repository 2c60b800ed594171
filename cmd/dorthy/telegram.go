package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jitinkakkar/dorthy-ai/internal/app"
	"github.com/jitinkakkar/dorthy-ai/internal/bot"
)

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.Telegram.Token == "" {
			return errors.New("TELEGRAM_TOKEN is not set")
		}

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := bot.New(cfg.Telegram.Token, a.Chat, a.Router, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return b.Start(ctx)
	},
}
