package nats

import (
	"context"
	"log/slog"

	"github.com/brojonat/roundtrip/service/arb"
)

// Observer publishes pipeline decisions. Publish failures are logged and
// never reach the pipeline.
type Observer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewObserver wraps a publisher as an arb.Observer.
func NewObserver(pub Publisher, logger *slog.Logger) *Observer {
	return &Observer{pub: pub, logger: logger.With("component", "nats_observer")}
}

func (o *Observer) OpportunityFound(ctx context.Context, trig arb.Trigger, opp arb.Opportunity) {
	if err := o.pub.PublishOpportunity(ctx, NewOpportunityEvent(trig, opp)); err != nil {
		o.logger.WarnContext(ctx, "failed to publish opportunity", "error", err)
	}
}

func (o *Observer) Submitted(ctx context.Context, trig arb.Trigger, opp arb.Opportunity, report *arb.ExecutionReport, err error) {
	if perr := o.pub.PublishSubmission(ctx, NewSubmissionEvent(trig, opp, report, err)); perr != nil {
		o.logger.WarnContext(ctx, "failed to publish submission", "error", perr)
	}
}
