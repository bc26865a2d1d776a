// Package trigger produces pipeline work from streamed large flows and from
// a fixed polling schedule.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/metrics"
	"github.com/brojonat/roundtrip/service/solana"
)

// Dispatcher accepts a trigger without blocking. It returns false when the
// trigger was not accepted.
type Dispatcher interface {
	Dispatch(trig arb.Trigger) bool
}

// BigTradeEvent is a streamed transaction that moved a watched mint by more
// than its threshold through a recognized DEX program.
type BigTradeEvent struct {
	TxID        string
	Mother      arb.TokenMeta
	Policy      arb.WatchEntry
	Changes     []solana.BalanceChange
	Timestamp   time.Time
	Programs    []string // recognized program names
	UniqueMints []string
}

// Trigger converts the event into pipeline work quoted in size-aware mode
// against the other mints the trade touched.
func (e *BigTradeEvent) Trigger() arb.Trigger {
	return arb.Trigger{
		Source:    arb.SourceBigTrade,
		TxID:      e.TxID,
		Mother:    e.Mother,
		Targets:   e.UniqueMints,
		From:      e.Policy.From,
		To:        e.Policy.To,
		Steps:     e.Policy.Steps,
		MinProfit: e.Policy.MinProfit,
		Mode:      arb.QuoteSizeAware,
	}
}

// BigTrade turns stream events into big-trade triggers.
type BigTrade struct {
	watch      map[string]arb.WatchEntry
	registry   *arb.Registry
	audit      arb.AuditSink
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewBigTrade creates the trigger. Entries with a non-positive threshold are
// never considered.
func NewBigTrade(entries []arb.WatchEntry, registry *arb.Registry, audit arb.AuditSink, dispatcher Dispatcher, m *metrics.Metrics, logger *slog.Logger) *BigTrade {
	watch := make(map[string]arb.WatchEntry, len(entries))
	for _, e := range entries {
		if e.BigTradeThreshold > 0 {
			watch[e.Mint] = e
		}
	}
	return &BigTrade{
		watch:      watch,
		registry:   registry,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With("component", "big_trade"),
	}
}

// Extract returns the event hidden in ev, if there is one. It never fails;
// anything that does not qualify yields false.
func (b *BigTrade) Extract(ev solana.StreamEvent) (*BigTradeEvent, bool) {
	if ev.Kind != solana.EventTransaction || ev.Tx == nil || ev.Tx.Err != nil {
		return nil, false
	}
	tx := ev.Tx

	// Deltas of different mints are not comparable, so candidates are ranked
	// by how many times over their own threshold they moved. Ties keep the
	// first candidate.
	var (
		mother    solana.BalanceChange
		policy    arb.WatchEntry
		found     bool
		bestRatio float64
	)
	for _, c := range tx.Changes {
		entry, ok := b.watch[c.Mint]
		if !ok {
			continue
		}
		d := math.Abs(c.Delta)
		if d <= entry.BigTradeThreshold {
			continue
		}
		if ratio := d / entry.BigTradeThreshold; ratio > bestRatio {
			mother, policy, bestRatio, found = c, entry, ratio, true
		}
	}
	if !found {
		return nil, false
	}

	programs := b.registry.RecognizedPrograms(tx.Programs)
	if len(programs) == 0 {
		return nil, false
	}

	var unique []string
	seen := map[string]bool{mother.Mint: true}
	for _, c := range tx.Changes {
		if seen[c.Mint] {
			continue
		}
		seen[c.Mint] = true
		unique = append(unique, c.Mint)
	}
	if len(unique) == 0 {
		return nil, false
	}

	ts := tx.BlockTime
	if ts.IsZero() {
		ts = ev.ReceivedAt
	}
	return &BigTradeEvent{
		TxID:        tx.Signature,
		Mother:      b.registry.Lookup(mother.Mint),
		Policy:      policy,
		Changes:     tx.Changes,
		Timestamp:   ts,
		Programs:    programs,
		UniqueMints: unique,
	}, true
}

// Handle extracts, audits and dispatches. It never blocks on the pipeline.
func (b *BigTrade) Handle(ctx context.Context, ev solana.StreamEvent) {
	bt, ok := b.Extract(ev)
	if !ok {
		return
	}
	b.metrics.RecordBigTrade(bt.Mother.Symbol)
	b.audit.Write(b.discoveredBlock(bt, time.Now()))

	trig := bt.Trigger()
	if !b.dispatcher.Dispatch(trig) {
		b.logger.WarnContext(ctx, "big trade dropped, dispatcher closed", "tx_id", bt.TxID)
		return
	}
	b.logger.InfoContext(ctx, "big trade discovered",
		"tx_id", bt.TxID,
		"mother", bt.Mother.Symbol,
		"targets", len(trig.Targets),
		"programs", strings.Join(bt.Programs, ","),
	)
}

func (b *BigTrade) discoveredBlock(bt *BigTradeEvent, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [BIG_TRADE_DISCOVERED]\n", arb.Stamp(now))
	fmt.Fprintf(&sb, "  tx_id:     %s\n", bt.TxID)
	fmt.Fprintf(&sb, "  mother:    %s (%s)\n", bt.Mother.Symbol, bt.Mother.Mint)
	fmt.Fprintf(&sb, "  min_profit: %.6f\n", bt.Policy.MinProfit)
	sb.WriteString("  changes:\n")
	for _, c := range bt.Changes {
		fmt.Fprintf(&sb, "    %s  delta: %+.6f  pre: %.6f  post: %.6f\n",
			b.registry.Symbol(c.Mint), c.Delta, c.Pre, c.Post)
	}
	fmt.Fprintf(&sb, "  programs:  %s", strings.Join(bt.Programs, ", "))
	return sb.String()
}
