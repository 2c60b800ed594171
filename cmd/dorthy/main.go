package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/logging"
	"github.com/jitinkakkar/dorthy-ai/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dorthy",
	Short: "Dorthy AI guide for first-time home buyers in Ontario",
	Long: `Dorthy collects an anonymous buyer profile over a conversation and, once it is
complete, suggests first-time home buyer programs that may fit.

Run "dorthy serve" for the HTTP API or "dorthy telegram" for the Telegram bot.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, telegramCmd)
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
