package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-analyzer/internal/api"
	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/config"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, c *commandContext) error {
	if parent == nil {
		parent = context.Background()
	}
	startTime := time.Now()
	cfg := c.cfg

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting heimdex analyzer", "version", config.Version, "data_dir", cfg.DataDir())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	a, err := c.newAnalyzer(ctx, logger, collector, 0)
	if err != nil {
		return err
	}
	collector.WatchScratch(a.pad.Outstanding)
	collector.SetCapabilities(capabilityNames(capability.All()), a.runtime.Caps.Names())

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Processor:      a.processor,
		Tools:          a.runtime.Tools,
		Readiness:      a.runtime.Readiness,
		Metrics:        collector,
		MetricsHandler: collector.Handler(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func capabilityNames(names []capability.Name) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
