package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
)

// Client owns the Temporal connection and manages the watchlist schedule.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

func (c *Client) scheduleOptions(interval time.Duration, input PollWatchlistInput) client.ScheduleOptions {
	return client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        "poll-watchlist",
			Workflow:  PollWatchlistWorkflow,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{input},
		},
		Overlap:            enums.SCHEDULE_OVERLAP_POLICY_SKIP,
		TriggerImmediately: true,
		Memo: map[string]interface{}{
			"created_by": "roundtrip",
		},
	}
}

// UpsertPollSchedule creates the watchlist schedule, or updates its interval
// and input if it already exists.
func (c *Client) UpsertPollSchedule(ctx context.Context, interval time.Duration, input PollWatchlistInput) error {
	log := c.logger.With("schedule_id", ScheduleID, "interval", interval, "mints", len(input.Mints))

	_, err := c.client.ScheduleClient().Create(ctx, c.scheduleOptions(interval, input))
	if err == nil {
		log.Info("poll schedule created")
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("failed to create schedule %q: %w", ScheduleID, err)
	}

	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	err = handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := in.Description.Schedule
			sched.Spec.Intervals = []client.ScheduleIntervalSpec{{Every: interval}}
			action, ok := sched.Action.(*client.ScheduleWorkflowAction)
			if !ok {
				return nil, fmt.Errorf("schedule %q has an unexpected action %T", ScheduleID, sched.Action)
			}
			action.Args = []interface{}{input}
			action.TaskQueue = c.taskQueue
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update schedule %q: %w", ScheduleID, err)
	}

	log.Info("poll schedule updated")
	return nil
}

// DeletePollSchedule deletes the watchlist schedule.
func (c *Client) DeletePollSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	if err := handle.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete schedule %q: %w", ScheduleID, err)
	}

	c.logger.Info("poll schedule deleted", "schedule_id", ScheduleID)
	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
