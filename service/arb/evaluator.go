package arb

import (
	"fmt"
	"math"

	"github.com/brojonat/roundtrip/service/metrics"
)

// EvalParams carries everything the evaluator needs besides the results.
type EvalParams struct {
	Fee       FeeModel
	Mother    TokenMeta
	Price     float64
	MinProfit float64
}

// MinProfitRaw converts the human minimum profit to raw units. Negative
// values clamp to zero.
func (p EvalParams) MinProfitRaw() int64 {
	if !(p.MinProfit > 0) {
		return 0
	}
	return int64(p.MinProfit * math.Pow10(int(p.Mother.Decimals)))
}

// Selection is the outcome of one evaluation pass. Best is nil when no
// result cleared the minimum profit.
type Selection struct {
	Best      *Opportunity
	Evaluated int
	Kept      int
}

// Evaluator prices quote results and picks the single best one.
type Evaluator struct {
	registry *Registry
	audit    AuditSink
	metrics  *metrics.Metrics
}

// NewEvaluator creates an evaluator that writes every evaluated result to audit.
func NewEvaluator(registry *Registry, audit AuditSink, m *metrics.Metrics) *Evaluator {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Evaluator{registry: registry, audit: audit, metrics: m}
}

// Evaluate computes gross, cost and net for each result, keeps those where
// net exceeds the minimum profit, and selects the maximal net. Ties keep
// the earliest result.
func (e *Evaluator) Evaluate(results []QuoteResult, p EvalParams) Selection {
	native := p.Mother.IsNative()
	minRaw := p.MinProfitRaw()

	sel := Selection{Evaluated: len(results)}
	for _, r := range results {
		opp := e.price(r, p.Fee, native, p.Mother.Decimals, p.Price)
		opp.MeetsThreshold = opp.NetProfit-minRaw > 0
		e.audit.Write(e.auditLine(opp, p.Mother, minRaw))

		if !opp.MeetsThreshold {
			continue
		}
		sel.Kept++
		if sel.Best == nil || opp.NetProfit > sel.Best.NetProfit {
			best := opp
			sel.Best = &best
		}
	}

	e.metrics.RecordEvaluation(p.Mother.Symbol, sel.Evaluated, sel.Kept)
	return sel
}

func (e *Evaluator) price(r QuoteResult, fee FeeModel, native bool, decimals uint8, price float64) Opportunity {
	gross := r.Gross()
	cost, relay := fee.ComputeForTrade(gross, native, decimals, price)
	return Opportunity{
		Result:      r,
		GrossProfit: gross,
		TotalCost:   cost,
		NetProfit:   gross - cost,
		RelayFeeSOL: relay,
	}
}

func (e *Evaluator) auditLine(o Opportunity, mother TokenMeta, minRaw int64) string {
	sym := mother.Symbol
	dec := mother.Decimals
	target := "?"
	if e.registry != nil {
		target = e.registry.Lookup(o.Result.Target).Symbol
	}

	verdict := "profitable"
	if !o.MeetsThreshold {
		verdict = "unprofitable"
	}
	return fmt.Sprintf(
		"[SIMULATE] %s: %s -> %s -> %s: in=%.6f %s, out=%.6f %s, gross_profit=%.6f %s, net_profit=%.6f %s (tx_cost=%.6f %s, min_required=%.6f %s, latency=%s)",
		verdict, sym, target, sym,
		FromRaw(int64(o.Result.InAmount), dec), sym,
		FromRaw(int64(o.Result.OutAmount), dec), sym,
		FromRaw(o.GrossProfit, dec), sym,
		FromRaw(o.NetProfit, dec), sym,
		FromRaw(o.TotalCost, dec), sym,
		FromRaw(minRaw, dec), sym,
		o.Result.Latency,
	)
}
