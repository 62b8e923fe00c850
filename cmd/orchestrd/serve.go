package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	orchttp "github.com/fyrsmithlabs/orchestrd/internal/http"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
	"github.com/fyrsmithlabs/orchestrd/internal/orchestrator"
	"github.com/fyrsmithlabs/orchestrd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration engine on the stdio MCP transport",
	Long: `Start the orchestration engine.

The MCP server runs on stdio until the client disconnects or the process
receives SIGINT/SIGTERM. When server.http_enabled is set, an HTTP listener
additionally serves /healthz, /readyz and /metrics.

Examples:
  # Start with defaults
  orchestrd serve

  # Explicit config file
  orchestrd serve --config ~/.config/orchestrd/config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting orchestrd",
		zap.String("version", version),
		zap.Bool("http_enabled", cfg.Server.HTTPEnabled),
		zap.Bool("monitor_enabled", cfg.Monitor.Enabled),
	)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceName:    "orchestrd",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Error("orchestrator shutdown error", zap.Error(err))
		}
	}()

	var httpSrv *orchttp.Server
	if cfg.Server.HTTPEnabled {
		httpSrv, err = orchttp.NewServer(orch, logger.Named("http"), cfg.Server.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to create http server: %w", err)
		}
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
	}

	mcpSrv, err := mcp.NewServer(&mcp.Config{
		Name:    "orchestrd",
		Version: version,
		Logger:  logger.Named("mcp"),
	}, orch)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Cancel the MCP run loop on signal.
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	runErr := mcpSrv.Run(ctx)

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}

	// A cancelled context is a normal shutdown, not a failure.
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
