package temporal

import (
	"context"
	"time"
)

// ScheduleID is the single schedule driving PollWatchlistWorkflow.
const ScheduleID = "roundtrip-poll-watchlist"

// Scheduler manages the Temporal schedule that polls the watchlist.
type Scheduler interface {
	// UpsertPollSchedule creates the schedule, or updates its interval and
	// input if it already exists.
	UpsertPollSchedule(ctx context.Context, interval time.Duration, input PollWatchlistInput) error

	// DeletePollSchedule deletes the schedule, stopping scheduled polls.
	DeletePollSchedule(ctx context.Context) error
}
