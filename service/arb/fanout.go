package arb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/roundtrip/service/metrics"
)

// Quoter fetches one swap leg from the aggregator.
type Quoter interface {
	Quote(ctx context.Context, mode QuoteMode, inputMint, outputMint string, amount uint64) (Leg, error)
}

// FanoutRequest describes one batch of round-trip quotes.
type FanoutRequest struct {
	Mother  TokenMeta
	Targets []string
	Grid    AmountGrid
	Mode    QuoteMode
}

// FanoutResult holds the successful units of a batch. Results are unordered.
type FanoutResult struct {
	Results []QuoteResult
	Failed  int
	Total   int
	Elapsed time.Duration
}

// Fanout issues every (amount, target) round trip concurrently and joins them.
type Fanout struct {
	quoter  Quoter
	limit   int
	audit   AuditSink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFanout creates a fan-out stage. limit bounds in-flight units; zero means unbounded.
func NewFanout(quoter Quoter, limit int, audit AuditSink, m *metrics.Metrics, logger *slog.Logger) *Fanout {
	if audit == nil {
		audit = NopAudit{}
	}
	return &Fanout{
		quoter:  quoter,
		limit:   limit,
		audit:   audit,
		metrics: m,
		logger:  logger.With("component", "fanout"),
	}
}

// Run quotes every unit of the batch and returns once all of them finished.
// A failing unit is dropped and counted; it never cancels its siblings.
func (f *Fanout) Run(ctx context.Context, req FanoutRequest) *FanoutResult {
	start := time.Now()
	total := len(req.Grid) * len(req.Targets)
	slots := make([]*QuoteResult, total)
	errs := make([]error, total)

	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}

	i := 0
	for _, amount := range req.Grid {
		for _, target := range req.Targets {
			idx, amount, target := i, amount, target
			i++
			g.Go(func() error {
				res, err := f.roundTrip(ctx, req.Mother.Mint, target, amount, req.Mode)
				if err != nil {
					errs[idx] = err
					return nil
				}
				slots[idx] = res
				return nil
			})
		}
	}
	_ = g.Wait()

	out := &FanoutResult{Total: total, Elapsed: time.Since(start)}
	for idx, res := range slots {
		if res != nil {
			out.Results = append(out.Results, *res)
			continue
		}
		out.Failed++
		f.logger.Debug("round trip dropped", "error", errs[idx])
	}

	f.metrics.RecordFanout(req.Mother.Symbol, req.Mode.String(), out.Failed, out.Elapsed.Seconds())
	f.audit.Write(fmt.Sprintf("[SIMULATE] round trip batch took %d ms (%d steps x %d targets)",
		out.Elapsed.Milliseconds(), len(req.Grid), len(req.Targets)))
	if out.Failed > 0 {
		f.audit.Write(fmt.Sprintf("[SIMULATE] %d quotes failed out of %d total", out.Failed, out.Total))
	}
	return out
}

func (f *Fanout) roundTrip(ctx context.Context, mother, target string, amount uint64, mode QuoteMode) (*QuoteResult, error) {
	start := time.Now()

	leg1, err := f.quoter.Quote(ctx, mode, mother, target, amount)
	if err != nil {
		return nil, &QuoteFetchError{Target: target, Amount: amount, Leg: 1, Err: err}
	}
	leg2, err := f.quoter.Quote(ctx, mode, target, mother, leg1.OutAmount)
	if err != nil {
		return nil, &QuoteFetchError{Target: target, Amount: amount, Leg: 2, Err: err}
	}

	return &QuoteResult{
		InAmount:  amount,
		OutAmount: leg2.OutAmount,
		Leg1:      leg1,
		Leg2:      leg2,
		Latency:   time.Since(start),
		Target:    target,
	}, nil
}
