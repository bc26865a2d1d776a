package arb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/roundtrip/service/metrics"
)

// PriceSource returns the current USD price of SOL, or zero when unknown.
type PriceSource interface {
	Price() float64
}

// Executor builds and submits one opportunity.
type Executor interface {
	Execute(ctx context.Context, trig Trigger, opp Opportunity) (*ExecutionReport, error)
}

// Observer is told about opportunities and submissions. Implementations must
// not block for long and must swallow their own errors.
type Observer interface {
	OpportunityFound(ctx context.Context, trig Trigger, opp Opportunity)
	Submitted(ctx context.Context, trig Trigger, opp Opportunity, report *ExecutionReport, err error)
}

// Outcome is the terminal state of one pipeline run.
type Outcome string

const (
	OutcomeInvalid       Outcome = "invalid_range"
	OutcomeNoOpportunity Outcome = "no_opportunity"
	OutcomeSimulated     Outcome = "simulated"
	OutcomeSubmitted     Outcome = "submitted"
	OutcomeFailed        Outcome = "failed"
)

// RunResult summarizes a pipeline run.
type RunResult struct {
	Outcome   Outcome          `json:"outcome"`
	Quotes    int              `json:"quotes"`
	Failed    int              `json:"failed"`
	Best      *Opportunity     `json:"best,omitempty"`
	Report    *ExecutionReport `json:"report,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
	Evaluated int              `json:"evaluated"`
}

// PipelineConfig holds the process-wide knobs of the pipeline.
type PipelineConfig struct {
	Fee  FeeModel
	Live bool
}

// Pipeline runs sample -> quote -> evaluate -> [build -> submit] for one
// trigger. Stages run strictly in order.
type Pipeline struct {
	cfg       PipelineConfig
	fanout    *Fanout
	evaluator *Evaluator
	prices    PriceSource
	executor  Executor
	observers []Observer
	trades    AuditSink
	registry  *Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPipeline wires the pipeline stages. executor may be nil when cfg.Live is false.
func NewPipeline(
	cfg PipelineConfig,
	fanout *Fanout,
	evaluator *Evaluator,
	prices PriceSource,
	executor Executor,
	registry *Registry,
	trades AuditSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	observers ...Observer,
) *Pipeline {
	if trades == nil {
		trades = NopAudit{}
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Pipeline{
		cfg:       cfg,
		fanout:    fanout,
		evaluator: evaluator,
		prices:    prices,
		executor:  executor,
		observers: observers,
		trades:    trades,
		registry:  registry,
		metrics:   m,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run executes one trigger. The returned RunResult is never nil; the error is
// set for invalid ranges and failed live submissions.
func (p *Pipeline) Run(ctx context.Context, trig Trigger) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{}
	defer func() {
		res.Elapsed = time.Since(start)
		p.metrics.RecordPipelineRun(trig.Source, string(res.Outcome))
	}()

	logger := p.logger.With("source", trig.Source, "mother", trig.Mother.Symbol, "mode", trig.Mode.String())
	if trig.TxID != "" {
		logger = logger.With("tx_id", trig.TxID)
	}

	grid, err := SampleAmounts(trig.From, trig.To, trig.Steps, trig.Mother.Decimals)
	if err != nil {
		res.Outcome = OutcomeInvalid
		logger.Warn("skipping trigger", "error", err)
		return res, err
	}

	targets := make([]string, 0, len(trig.Targets))
	for _, t := range trig.Targets {
		if t != trig.Mother.Mint {
			targets = append(targets, t)
		}
	}

	batch := p.fanout.Run(ctx, FanoutRequest{
		Mother:  trig.Mother,
		Targets: targets,
		Grid:    grid,
		Mode:    trig.Mode,
	})
	res.Quotes = len(batch.Results)
	res.Failed = batch.Failed

	price := 0.0
	if p.prices != nil {
		price = p.prices.Price()
	}
	sel := p.evaluator.Evaluate(batch.Results, EvalParams{
		Fee:       p.cfg.Fee,
		Mother:    trig.Mother,
		Price:     price,
		MinProfit: trig.MinProfit,
	})
	res.Evaluated = sel.Evaluated

	if sel.Best == nil {
		res.Outcome = OutcomeNoOpportunity
		logger.Debug("no opportunity",
			"quotes", batch.Total,
			"failed", batch.Failed,
			"batch_ms", batch.Elapsed.Milliseconds(),
		)
		return res, nil
	}
	best := *sel.Best
	res.Best = &best

	logger = logger.With(
		"target", p.registry.Lookup(best.Result.Target).Symbol,
		"in_amount", best.Result.InAmount,
		"out_amount", best.Result.OutAmount,
		"gross_profit", best.GrossProfit,
		"net_profit", best.NetProfit,
		"tx_cost", best.TotalCost,
	)

	if !p.cfg.Live {
		res.Outcome = OutcomeSimulated
		logger.Info("opportunity found", "live", false)
		return res, nil
	}

	logger.Info("opportunity found", "live", true, "relay_fee_sol", best.RelayFeeSOL)
	if trig.Source == SourceBigTrade {
		p.trades.Write(p.bigTradeLine(trig, best))
	}
	for _, o := range p.observers {
		o.OpportunityFound(ctx, trig, best)
	}

	report, err := p.executor.Execute(ctx, trig, best)
	res.Report = report
	for _, o := range p.observers {
		o.Submitted(ctx, trig, best, report, err)
	}

	if err != nil {
		res.Outcome = OutcomeFailed
		var buildErr *BuildError
		if errors.As(err, &buildErr) {
			logger.Warn("opportunity skipped", "error", err)
		} else {
			logger.Error("submission failed", "error", err)
		}
		return res, err
	}

	res.Outcome = OutcomeSubmitted
	landed, _ := report.Landed()
	logger.Info("opportunity submitted",
		"channel", landed.Channel,
		"signature", report.PreviewSignature,
	)
	p.trades.Write(p.submitLine(trig, best, report, landed.Channel))
	return res, nil
}

func (p *Pipeline) bigTradeLine(trig Trigger, o Opportunity) string {
	return fmt.Sprintf(
		"[%s] [BIG_TRADE] Profitable opportunity found: token=%s (%s), tx_id=%s, unique_tokens=[%s], in_amount=%d, out_amount=%d, gross_profit=%d, net_profit=%d",
		Stamp(time.Now()),
		trig.Mother.Symbol, trig.Mother.Mint, trig.TxID,
		p.registry.SymbolList(trig.Targets),
		o.Result.InAmount, o.Result.OutAmount, o.GrossProfit, o.NetProfit,
	)
}

func (p *Pipeline) submitLine(trig Trigger, o Opportunity, report *ExecutionReport, channel string) string {
	return fmt.Sprintf(
		"[%s] [SUBMIT_SUCCESS] token=%s, in_amount=%d, out_amount=%d, gross_profit=%d, net_profit=%d, tx_cost=%d, service=%s, source=%s, original_tx_id=%s, submitted_tx_signature=%s",
		Stamp(time.Now()),
		trig.Mother.Symbol,
		o.Result.InAmount, o.Result.OutAmount, o.GrossProfit, o.NetProfit, o.TotalCost,
		channel, trig.Source, trig.TxID, report.PreviewSignature,
	)
}
