package temporal

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/metrics"
)

// ListTriggersInput filters the watchlist. An empty Mints list selects every entry.
type ListTriggersInput struct {
	Mints []string `json:"mints,omitempty"`
}

// ListTriggersResult contains one poll trigger per selected watchlist entry.
type ListTriggersResult struct {
	Triggers []arb.Trigger `json:"triggers"`
}

// RunTriggerInput contains the trigger to run through the pipeline.
type RunTriggerInput struct {
	Trigger arb.Trigger `json:"trigger"`
}

// RunTriggerResult summarizes one pipeline run.
type RunTriggerResult struct {
	Mother    string  `json:"mother"`
	Outcome   string  `json:"outcome"`
	Quotes    int     `json:"quotes"`
	Failed    int     `json:"failed"`
	NetProfit *int64  `json:"net_profit,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// TriggerSource builds poll triggers from the watchlist.
type TriggerSource interface {
	Triggers() []arb.Trigger
}

// TriggerRunner runs one trigger through sample, quote, evaluate and execute.
type TriggerRunner interface {
	Run(ctx context.Context, trig arb.Trigger) (*arb.RunResult, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	triggers TriggerSource
	runner   TriggerRunner
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(triggers TriggerSource, runner TriggerRunner, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		triggers: triggers,
		runner:   runner,
		metrics:  m,
		logger:   logger,
	}
}

// ListTriggers returns the current watchlist as poll triggers.
func (a *Activities) ListTriggers(ctx context.Context, input ListTriggersInput) (*ListTriggersResult, error) {
	all := a.triggers.Triggers()
	if len(input.Mints) == 0 {
		return &ListTriggersResult{Triggers: all}, nil
	}

	want := make(map[string]bool, len(input.Mints))
	for _, m := range input.Mints {
		want[m] = true
	}
	selected := make([]arb.Trigger, 0, len(input.Mints))
	for _, t := range all {
		if want[t.Mother.Mint] {
			selected = append(selected, t)
		}
	}

	a.logger.DebugContext(ctx, "listed triggers", "total", len(all), "selected", len(selected))
	return &ListTriggersResult{Triggers: selected}, nil
}

// RunTrigger runs a single trigger. Pipeline failures are reported in the
// result rather than as an activity error so Temporal never retries a
// submission.
func (a *Activities) RunTrigger(ctx context.Context, input RunTriggerInput) (*RunTriggerResult, error) {
	start := time.Now()
	trig := input.Trigger

	res, err := a.runner.Run(ctx, trig)
	out := &RunTriggerResult{Mother: trig.Mother.Symbol}
	if res != nil {
		out.Outcome = string(res.Outcome)
		out.Quotes = res.Quotes
		out.Failed = res.Failed
		if res.Best != nil {
			net := res.Best.NetProfit
			out.NetProfit = &net
		}
		if res.Report != nil {
			out.Signature = res.Report.PreviewSignature
		}
	}
	if err != nil {
		msg := err.Error()
		out.Error = &msg
		a.logger.WarnContext(ctx, "trigger run failed", "mother", trig.Mother.Symbol, "error", err)
	}

	a.metrics.RecordWorkflowDuration(out.Outcome, time.Since(start).Seconds())
	return out, nil
}
