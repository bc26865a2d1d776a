package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/metrics"
)

// ErrNonceAdvanced aborts a send whose nonce is no longer current, meaning
// a copy of the trade has already landed or the nonce was used elsewhere.
var ErrNonceAdvanced = errors.New("nonce advanced since the plan was built")

// ErrNoTargets is returned when no relay channel and no fallback are configured.
var ErrNoTargets = errors.New("no submission channels configured")

// Channel is a sender plus the account its tip is paid to. A zero tip
// account means the channel gets no tip.
type Channel struct {
	Sender     Sender
	TipAccount solana.PublicKey
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// RetryCount is the number of attempts per channel, at least one.
	RetryCount int
	RetryDelay time.Duration
	// AlsoFallback adds the standard node to the broadcast when relays are configured.
	AlsoFallback bool
}

// Router broadcasts a plan across relay channels, or to the fallback node
// when none are configured.
type Router struct {
	cfg      RouterConfig
	channels []Channel
	fallback Sender
	nonces   NonceSource
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig, channels []Channel, fallback Sender, nonces NonceSource, m *metrics.Metrics, logger *slog.Logger) *Router {
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 1
	}
	return &Router{
		cfg:      cfg,
		channels: channels,
		fallback: fallback,
		nonces:   nonces,
		metrics:  m,
		logger:   logger.With("component", "router"),
	}
}

// Targets returns the channels a plan will be sent through. It is empty when
// neither relays nor a fallback are configured.
func (r *Router) Targets() []Channel {
	if len(r.channels) == 0 {
		if r.fallback == nil {
			return nil
		}
		return []Channel{{Sender: r.fallback}}
	}
	targets := append([]Channel(nil), r.channels...)
	if r.cfg.AlsoFallback && r.fallback != nil {
		targets = append(targets, Channel{Sender: r.fallback})
	}
	return targets
}

// Submit sends the plan through every target concurrently. Channels fail
// independently and a slow channel is never cancelled by a fast one. The
// plan can only be submitted once.
func (r *Router) Submit(ctx context.Context, plan *SubmissionPlan) (*arb.ExecutionReport, error) {
	targets := r.Targets()
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if err := plan.Consume(); err != nil {
		return nil, err
	}

	retries := plan.RetryCount
	if retries < 1 {
		retries = r.cfg.RetryCount
	}

	// Every payload is signed before the first send goes out.
	outcomes := make([]arb.ChannelOutcome, len(targets))
	txs := make([]*solana.Transaction, len(targets))
	for i, ch := range targets {
		outcomes[i].Channel = ch.Sender.Name()
		tx, err := plan.Transaction(ch.TipAccount)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		txs[i] = tx
	}

	var wg sync.WaitGroup
	for i, ch := range targets {
		if txs[i] == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.send(ctx, plan, ch.Sender, txs[i], retries)
		}()
	}
	wg.Wait()

	report := &arb.ExecutionReport{
		PreviewSignature: plan.PreviewSignature.String(),
		Outcomes:         outcomes,
	}
	if _, ok := report.Landed(); !ok {
		return report, &arb.SubmissionError{Outcomes: outcomes}
	}
	return report, nil
}

func (r *Router) send(ctx context.Context, plan *SubmissionPlan, sender Sender, tx *solana.Transaction, retries int) arb.ChannelOutcome {
	name := sender.Name()
	out := arb.ChannelOutcome{Channel: name}

	op := func() error {
		if r.nonceAdvanced(plan) {
			return backoff.Permanent(ErrNonceAdvanced)
		}
		out.Attempts++
		start := time.Now()
		sig, err := sender.Send(ctx, tx)
		r.metrics.RecordSubmission(name, err, time.Since(start).Seconds())
		if err != nil {
			r.logger.DebugContext(ctx, "send attempt failed",
				"channel", name,
				"attempt", out.Attempts,
				"error", err,
			)
			return err
		}
		out.Signature = sig.String()
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryDelay), uint64(retries-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		out.Err = err
		out.Signature = ""
	}
	return out
}

func (r *Router) nonceAdvanced(plan *SubmissionPlan) bool {
	if r.nonces == nil {
		return false
	}
	cur, ok := r.nonces.Current()
	return ok && cur.Blockhash != plan.Nonce.Blockhash
}
