package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/roundtrip/service/arb"
)

// Poller dispatches one trigger per watch entry on a fixed period.
type Poller struct {
	entries       []arb.WatchEntry
	defaultTarget string
	interval      time.Duration
	registry      *arb.Registry
	dispatcher    Dispatcher
	logger        *slog.Logger
}

// NewPoller creates a poller.
func NewPoller(entries []arb.WatchEntry, defaultTarget string, interval time.Duration, registry *arb.Registry, dispatcher Dispatcher, logger *slog.Logger) *Poller {
	return &Poller{
		entries:       entries,
		defaultTarget: defaultTarget,
		interval:      interval,
		registry:      registry,
		dispatcher:    dispatcher,
		logger:        logger.With("component", "poller"),
	}
}

// Targets returns the quote targets for a mother. The native asset is
// always quoted against the reference stables.
func Targets(mother arb.TokenMeta, entry arb.WatchEntry, defaultTarget string) []string {
	if mother.IsNative() {
		return []string{arb.USDCMint, arb.USDTMint}
	}
	if entry.Target != "" {
		return []string{entry.Target}
	}
	return []string{defaultTarget}
}

// Triggers builds this tick's work.
func (p *Poller) Triggers() []arb.Trigger {
	out := make([]arb.Trigger, 0, len(p.entries))
	for _, e := range p.entries {
		mother := p.registry.Lookup(e.Mint)
		out = append(out, arb.Trigger{
			Source:    arb.SourcePoll,
			Mother:    mother,
			Targets:   Targets(mother, e, p.defaultTarget),
			From:      e.From,
			To:        e.To,
			Steps:     e.Steps,
			MinProfit: e.MinProfit,
			Mode:      arb.QuoteRegular,
		})
	}
	return out
}

// Tick dispatches every entry once and returns how many were accepted.
func (p *Poller) Tick() int {
	n := 0
	for _, trig := range p.Triggers() {
		if p.dispatcher.Dispatch(trig) {
			n++
		}
	}
	return n
}

// Run ticks immediately and then every interval until ctx is done. A tick
// that comes due while the previous one is still dispatching is skipped.
func (p *Poller) Run(ctx context.Context) {
	p.logger.InfoContext(ctx, "poller started", "entries", len(p.entries), "interval", p.interval)
	p.Tick()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poller stopped")
			return
		case <-ticker.C:
			if n := p.Tick(); n < len(p.entries) {
				p.logger.WarnContext(ctx, "poll tick partially dispatched", "accepted", n, "entries", len(p.entries))
			}
		}
	}
}
