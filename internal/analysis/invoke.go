package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// Metrics receives pipeline observations. A nil Metrics is valid.
type Metrics interface {
	RequestDone(modality string, success bool, elapsed time.Duration)
	CapabilityFailed(name string)
}

type nopMetrics struct{}

func (nopMetrics) RequestDone(string, bool, time.Duration) {}
func (nopMetrics) CapabilityFailed(string) {}

// deps is what every pipeline shares.
type deps struct {
	caps    capability.Set
	pad     *scratch.Pad
	logger  *slog.Logger
	metrics Metrics
	fanout  int
}

type loggerKey struct{}

func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// log returns the request-scoped logger stored by the Processor, or the base
// logger tagged with the request ID when a pipeline is called directly.
func (d *deps) log(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return logging.WithRequestID(d.logger, id)
	}
	return d.logger
}

// outcome is the result of one capability call.
type outcome[T any] struct {
	value T
	err   error
}

func (o outcome[T]) ok() bool { return o.err == nil }

// invoke calls one capability and isolates its failure: errors and panics
// become a failed outcome, are logged at warn and counted.
func invoke[T any](ctx context.Context, d *deps, name capability.Name, fn func(context.Context) (T, error)) (out outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome[T]{err: fmt.Errorf("capability panicked: %v", r)}
			d.capabilityFailed(ctx, name, out.err)
		}
	}()

	v, err := fn(ctx)
	if err != nil {
		d.capabilityFailed(ctx, name, err)
		return outcome[T]{err: err}
	}
	return outcome[T]{value: v}
}

func (d *deps) capabilityFailed(ctx context.Context, name capability.Name, err error) {
	logging.WithCapability(d.log(ctx), string(name)).Warn("capability failed", "error", err)
	d.metrics.CapabilityFailed(string(name))
}

// guard runs fn and turns a panic into a logged failure of the named branch.
// It reports whether fn completed.
func (d *deps) guard(ctx context.Context, branch string, fn func()) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log(ctx).Error("analysis branch panicked", "branch", branch, "panic", fmt.Sprint(r))
			completed = false
		}
	}()
	fn()
	return true
}
