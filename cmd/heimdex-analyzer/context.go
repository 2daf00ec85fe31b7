package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/heimdex/heimdex-analyzer/internal/analysis"
	"github.com/heimdex/heimdex-analyzer/internal/app"
	"github.com/heimdex/heimdex-analyzer/internal/config"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// commandContext carries state shared by every subcommand.
type commandContext struct {
	envFile *string
	cfg     config.Config
}

func newCommandContext(envFile *string) *commandContext {
	return &commandContext{envFile: envFile}
}

func (c *commandContext) load() error {
	if err := config.LoadDotEnv(*c.envFile); err != nil {
		return err
	}
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *commandContext) logger(w io.Writer) *slog.Logger {
	return logging.NewLoggerTo(w, c.cfg.LogLevel())
}

// analyzer is everything a command needs to run analyses.
type analyzer struct {
	pad       *scratch.Pad
	runtime   *app.Runtime
	processor *analysis.Processor
}

// newAnalyzer prepares the scratch pad, sweeps files orphaned by a previous
// crash and probes the capability roster.
func (c *commandContext) newAnalyzer(ctx context.Context, logger *slog.Logger, metrics analysis.Metrics, sidecarWait time.Duration) (*analyzer, error) {
	if err := os.MkdirAll(c.cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	pad, err := scratch.New(c.cfg.ScratchDir(), logger)
	if err != nil {
		return nil, err
	}
	pad.Sweep(c.cfg.ScratchSweepAge())

	opts := app.OptionsFromConfig(c.cfg)
	opts.SidecarWait = sidecarWait
	rt := app.Build(ctx, opts, pad, logger)

	proc := analysis.New(rt.Caps, pad, analysis.Options{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: c.cfg.RequestTimeout(),
		MaxUploadBytes: c.cfg.MaxUploadBytes(),
		FrameFanout:    c.cfg.FrameFanout(),
	})
	return &analyzer{pad: pad, runtime: rt, processor: proc}, nil
}
