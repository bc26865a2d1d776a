package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/worker"

	"github.com/brojonat/roundtrip/service/metrics"
)

// WorkerConfig contains configuration for the Temporal polling driver.
type WorkerConfig struct {
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// PollInterval, when positive, upserts the watchlist schedule on start.
	PollInterval time.Duration
	// Mints restricts scheduled polls; empty polls the whole watchlist.
	Mints []string
	// MaxConcurrentRuns bounds RunTrigger activities on this worker.
	MaxConcurrentRuns int

	Triggers TriggerSource
	Runner   TriggerRunner
	Metrics  *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger   *slog.Logger
}

// Worker runs PollWatchlistWorkflow and its activities in-process, next to
// the pipeline it drives.
type Worker struct {
	cfg    WorkerConfig
	client *Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker connects to Temporal and registers the polling workflow.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 32
	}
	logger := cfg.Logger.With("component", "temporal_worker")

	c, err := NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TaskQueue, logger)
	if err != nil {
		return nil, err
	}

	w := worker.New(c.SDKClient(), cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentRuns,
		MaxConcurrentWorkflowTaskExecutionSize: 4,
	})

	w.RegisterWorkflow(PollWatchlistWorkflow)

	activities := NewActivities(cfg.Triggers, cfg.Runner, cfg.Metrics, logger)
	w.RegisterActivity(activities.ListTriggers)
	w.RegisterActivity(activities.RunTrigger)

	logger.Info("registered workflow and activities",
		"workflow", "PollWatchlistWorkflow",
		"activities", []string{"ListTriggers", "RunTrigger"},
		"max_concurrent_runs", cfg.MaxConcurrentRuns,
	)

	return &Worker{
		cfg:    cfg,
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// Run upserts the schedule if configured, then processes workflows and
// activities until ctx is cancelled. The schedule is left in place on exit
// so the next engine picks it up.
func (w *Worker) Run(ctx context.Context) error {
	defer w.client.Close()

	if w.cfg.PollInterval > 0 {
		if err := w.client.UpsertPollSchedule(ctx, w.cfg.PollInterval, PollWatchlistInput{Mints: w.cfg.Mints}); err != nil {
			return fmt.Errorf("failed to install poll schedule: %w", err)
		}
	}

	w.logger.Info("starting temporal worker", "task_queue", w.cfg.TaskQueue)
	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	if err := w.worker.Run(stop); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}
