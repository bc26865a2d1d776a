// Package execution turns a selected opportunity into a durable-nonce
// transaction and races it through the configured submission channels.
package execution

import (
	"context"
	"log/slog"

	"github.com/brojonat/roundtrip/service/arb"
)

const lamportsPerSOL = 1_000_000_000

// Executor implements arb.Executor with a Builder and a Router.
type Executor struct {
	builder *Builder
	router  *Router
	fee     arb.FeeModel
	logger  *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(builder *Builder, router *Router, fee arb.FeeModel, logger *slog.Logger) *Executor {
	return &Executor{
		builder: builder,
		router:  router,
		fee:     fee,
		logger:  logger.With("component", "executor"),
	}
}

// Execute builds the trade with a minimum output of in + min profit and
// submits it. The tip is the relay fee the evaluator priced in.
func (e *Executor) Execute(ctx context.Context, trig arb.Trigger, opp arb.Opportunity) (*arb.ExecutionReport, error) {
	minOut := arb.ToRaw(trig.MinProfit, trig.Mother.Decimals)
	if minOut < 0 {
		minOut = 0
	}
	tip := TipParams{
		Lamports:                 uint64(opp.RelayFeeSOL * lamportsPerSOL),
		ComputeUnits:             e.fee.ComputeUnits,
		PriorityFeeMicroLamports: e.fee.PriorityFeeMicroLamports,
	}

	plan, err := e.builder.Build(ctx, opp, uint64(minOut), tip)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "submitting trade",
		"mother", trig.Mother.Symbol,
		"target", opp.Result.Target,
		"in_amount", opp.Result.InAmount,
		"preview_signature", plan.PreviewSignature.String(),
		"tip_lamports", tip.Lamports,
	)
	return e.router.Submit(ctx, plan)
}
