package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/callinsights/transcribe-orchestrator/internal/api_server"
	"github.com/callinsights/transcribe-orchestrator/internal/config"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch intake and notification API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		sync := initLogging(cfg)
		defer sync()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		if err := cfg.ValidateAPI(); err != nil {
			zap.S().Fatalw("invalid configuration", "error", service.NewErrConfiguration(err))
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing service", "error", err)
		}
		defer c.store.Close()

		metrics.RegisterStoreCollector(c.store)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, listener, c.batchJobSrv, c.dispatcher)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("Error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}
