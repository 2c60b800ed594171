package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/app"
	"github.com/jitinkakkar/dorthy-ai/internal/chat"
	"github.com/jitinkakkar/dorthy-ai/internal/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		// A missing API key keeps /health up and answers /chatkit with 503.
		var chatServer *chat.Server
		a, err := app.New(cfg, logger)
		switch {
		case errors.Is(err, app.ErrServiceUnavailable):
			logger.Warn("Chat server unavailable", zap.Error(err))
		case err != nil:
			return err
		default:
			defer a.Close()
			chatServer = a.Chat
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpServer := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpapi.NewServer(chatServer, logger),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		logger.Info("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
