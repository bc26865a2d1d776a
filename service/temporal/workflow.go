package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/brojonat/roundtrip/service/arb"
)

var a *Activities // for type-safe activity invocation

// PollWatchlistInput selects which watchlist entries a run polls.
type PollWatchlistInput struct {
	Mints []string `json:"mints,omitempty"`
}

// PollWatchlistResult summarizes one scheduled pass over the watchlist.
type PollWatchlistResult struct {
	PollTime      time.Time          `json:"poll_time"`
	Triggers      int                `json:"triggers"`
	Opportunities int                `json:"opportunities"`
	Submitted     int                `json:"submitted"`
	Failed        int                `json:"failed"`
	Runs          []RunTriggerResult `json:"runs"`
}

// PollWatchlistWorkflow runs every watchlist entry through the pipeline once.
// It is started by a Temporal schedule with overlap policy SKIP, so a slow
// pass delays the next one instead of stacking.
//
// The workflow:
// 1. Lists the poll triggers (ListTriggers activity)
// 2. Runs each trigger concurrently (RunTrigger activity, never retried)
// 3. Returns a summary of the pass
func PollWatchlistWorkflow(ctx workflow.Context, input PollWatchlistInput) (*PollWatchlistResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollWatchlistWorkflow started", "mints", len(input.Mints))

	result := &PollWatchlistResult{PollTime: workflow.Now(ctx)}

	listCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var listed *ListTriggersResult
	if err := workflow.ExecuteActivity(listCtx, a.ListTriggers, ListTriggersInput(input)).Get(ctx, &listed); err != nil {
		return result, err
	}
	result.Triggers = len(listed.Triggers)

	// A retried RunTrigger could submit the same trade twice.
	runCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	futures := make([]workflow.Future, 0, len(listed.Triggers))
	for _, trig := range listed.Triggers {
		futures = append(futures, workflow.ExecuteActivity(runCtx, a.RunTrigger, RunTriggerInput{Trigger: trig}))
	}

	for i, f := range futures {
		var run RunTriggerResult
		if err := f.Get(ctx, &run); err != nil {
			msg := err.Error()
			run = RunTriggerResult{Mother: listed.Triggers[i].Mother.Symbol, Error: &msg}
			logger.Warn("trigger activity failed", "mother", run.Mother, "error", err)
			result.Failed++
			result.Runs = append(result.Runs, run)
			continue
		}
		switch arb.Outcome(run.Outcome) {
		case arb.OutcomeSubmitted:
			result.Opportunities++
			result.Submitted++
		case arb.OutcomeSimulated:
			result.Opportunities++
		case arb.OutcomeFailed:
			result.Opportunities++
			result.Failed++
		}
		result.Runs = append(result.Runs, run)
	}

	logger.Info("PollWatchlistWorkflow completed",
		"triggers", result.Triggers,
		"opportunities", result.Opportunities,
		"submitted", result.Submitted,
		"failed", result.Failed,
	)
	return result, nil
}
