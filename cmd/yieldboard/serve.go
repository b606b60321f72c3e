package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/yieldboard"
	"github.com/jpalmerr/yieldboard/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the yieldboard dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the yieldboard dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Read and analyse every configured wallet
  - Follow wallet providers for network switches
  - Serve the dashboard UI and API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  yieldboard serve -c config.yaml
  yieldboard serve --config /etc/yieldboard/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.SlogLevel())

	logger.Info("config loaded",
		"wallets", len(cfg.Wallets),
		"networks", len(cfg.Networks),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"submit_url", cfg.StrategyService.SubmitURL,
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	adv, err := yieldboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}
	defer adv.Close()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- adv.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
