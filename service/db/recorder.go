package db

import (
	"context"
	"log/slog"

	"github.com/brojonat/roundtrip/service/arb"
)

// SubmissionWriter is the subset of Store the Recorder needs.
type SubmissionWriter interface {
	CreateSubmission(ctx context.Context, params CreateSubmissionParams) (*Submission, error)
}

// Recorder writes every live submission attempt to the ledger. It implements
// arb.Observer; write failures are logged.
type Recorder struct {
	store  SubmissionWriter
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store SubmissionWriter, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.With("component", "submission_recorder")}
}

// OpportunityFound is a no-op; only submissions are recorded.
func (r *Recorder) OpportunityFound(context.Context, arb.Trigger, arb.Opportunity) {}

func (r *Recorder) Submitted(ctx context.Context, trig arb.Trigger, opp arb.Opportunity, report *arb.ExecutionReport, err error) {
	params := SubmissionParams(trig, opp, report, err)
	if _, werr := r.store.CreateSubmission(ctx, params); werr != nil {
		r.logger.ErrorContext(ctx, "failed to record submission",
			"error", werr,
			"mother", trig.Mother.Symbol,
			"status", params.Status,
		)
	}
}

// SubmissionParams converts a pipeline submission into ledger parameters.
func SubmissionParams(trig arb.Trigger, opp arb.Opportunity, report *arb.ExecutionReport, err error) CreateSubmissionParams {
	params := CreateSubmissionParams{
		Source:       trig.Source,
		TriggerTx:    optional(trig.TxID),
		MotherMint:   trig.Mother.Mint,
		MotherSymbol: trig.Mother.Symbol,
		TargetMint:   opp.Result.Target,
		InAmount:     int64(opp.Result.InAmount),
		OutAmount:    int64(opp.Result.OutAmount),
		GrossProfit:  opp.GrossProfit,
		NetProfit:    opp.NetProfit,
		TxCost:       opp.TotalCost,
		RelayFeeSOL:  opp.RelayFeeSOL,
		Status:       arb.SubmissionStatus(err),
	}
	if err != nil {
		params.Error = optional(err.Error())
	}
	if report != nil {
		params.PreviewSignature = optional(report.PreviewSignature)
		if landed, ok := report.Landed(); ok {
			params.LandedChannel = optional(landed.Channel)
		}
		for _, o := range report.Outcomes {
			a := ChannelAttempt{Channel: o.Channel, Signature: o.Signature, Attempts: o.Attempts}
			if o.Err != nil {
				a.Error = o.Err.Error()
			}
			params.Channels = append(params.Channels, a)
		}
	}
	return params
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
