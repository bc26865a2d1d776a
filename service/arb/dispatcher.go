package arb

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/brojonat/roundtrip/service/metrics"
)

// Runner runs one trigger to completion.
type Runner interface {
	Run(ctx context.Context, trig Trigger) (*RunResult, error)
}

// Dispatcher runs every trigger on its own goroutine so callers never wait
// on a pipeline. All runs share the root context given at construction.
type Dispatcher struct {
	ctx      context.Context
	runner   Runner
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher bound to ctx.
func NewDispatcher(ctx context.Context, runner Runner, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		ctx:     ctx,
		runner:  runner,
		metrics: m,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Dispatch starts trig in the background. It returns false once Shutdown
// has been called.
func (d *Dispatcher) Dispatch(trig Trigger) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.wg.Add(1)
	d.mu.Unlock()

	d.inFlight.Add(1)
	d.metrics.RecordPipelineInFlight(1)
	go func() {
		defer func() {
			d.inFlight.Add(-1)
			d.metrics.RecordPipelineInFlight(-1)
			d.wg.Done()
		}()
		if _, err := d.runner.Run(d.ctx, trig); err != nil {
			d.logger.Debug("trigger finished with error", "source", trig.Source, "error", err)
		}
	}()
	return true
}

// InFlight returns the number of running triggers.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Shutdown stops accepting triggers and waits for running ones until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.logger.Warn("abandoning in-flight triggers", "count", d.InFlight())
		return ctx.Err()
	}
}
