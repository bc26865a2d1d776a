package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/brojonat/roundtrip/service/metrics"
)

// IngestionError is a failure of the streaming connection. It is never
// fatal; the stream reconnects after a fixed delay.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// LogNotice is one logsSubscribe notification.
type LogNotice struct {
	Signature solana.Signature
	Slot      uint64
	Failed    bool
}

// LogSubscription delivers notices for one mentioned account.
type LogSubscription interface {
	Recv(ctx context.Context) (*LogNotice, error)
	Unsubscribe()
}

// LogSource is a connected websocket.
type LogSource interface {
	SubscribeMentions(ctx context.Context, account solana.PublicKey) (LogSubscription, error)
	Close()
}

// Dialer opens a LogSource.
type Dialer func(ctx context.Context) (LogSource, error)

// StreamConfig configures a Stream.
type StreamConfig struct {
	Mentions       []solana.PublicKey
	ReconnectDelay time.Duration
	// DedupeTTL bounds how long a signature is remembered. A transaction
	// touching several watched mints is delivered once.
	DedupeTTL time.Duration
	// FetchConcurrency bounds in-flight transaction fetches per connection.
	FetchConcurrency int
}

// Stream subscribes to logs mentioning each watched account and delivers
// the parsed transactions.
type Stream struct {
	cfg     StreamConfig
	dial    Dialer
	client  *Client
	seen    *cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStream creates a stream.
func NewStream(cfg StreamConfig, dial Dialer, client *Client, m *metrics.Metrics, logger *slog.Logger) *Stream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 2 * time.Minute
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 16
	}
	return &Stream{
		cfg:     cfg,
		dial:    dial,
		client:  client,
		seen:    cache.New(cfg.DedupeTTL, 2*cfg.DedupeTTL),
		metrics: m,
		logger:  logger.With("component", "stream"),
	}
}

// Run streams until ctx is done. Connection failures are logged and retried
// after ReconnectDelay; handle is called for every event.
func (s *Stream) Run(ctx context.Context, handle func(context.Context, StreamEvent)) error {
	if len(s.cfg.Mentions) == 0 {
		return errors.New("stream has no accounts to watch")
	}

	sessions := 0
	op := func() error {
		if sessions > 0 {
			s.metrics.RecordStreamReconnect()
		}
		sessions++
		err := s.session(ctx, handle, sessions > 1)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "stream disconnected, reconnecting",
			"error", err,
			"delay", wait,
		)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.ReconnectDelay), ctx)
	err := backoff.RetryNotify(op, policy, notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *Stream) session(ctx context.Context, handle func(context.Context, StreamEvent), reconnected bool) error {
	src, err := s.dial(ctx)
	if err != nil {
		return &IngestionError{Stage: "connect", Err: err}
	}
	defer src.Close()

	subs := make([]LogSubscription, 0, len(s.cfg.Mentions))
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
	for _, account := range s.cfg.Mentions {
		sub, err := src.SubscribeMentions(ctx, account)
		if err != nil {
			return &IngestionError{Stage: "subscribe", Err: fmt.Errorf("%s: %w", account, err)}
		}
		subs = append(subs, sub)
	}

	s.logger.InfoContext(ctx, "stream subscribed", "accounts", len(subs))
	if reconnected {
		s.emit(ctx, handle, StreamEvent{Kind: EventReconnected, ReceivedAt: time.Now()})
	}

	g, gctx := errgroup.WithContext(ctx)
	fetches, fctx := errgroup.WithContext(gctx)
	fetches.SetLimit(s.cfg.FetchConcurrency)

	for i, sub := range subs {
		mention := s.cfg.Mentions[i].String()
		g.Go(func() error {
			for {
				notice, err := sub.Recv(gctx)
				if err != nil {
					return &IngestionError{Stage: "receive", Err: err}
				}
				if notice == nil {
					continue
				}
				if s.seen.Add(notice.Signature.String(), struct{}{}, cache.DefaultExpiration) != nil {
					continue
				}
				if notice.Failed {
					s.emit(gctx, handle, StreamEvent{
						Kind:       EventFailedTransaction,
						Signature:  notice.Signature.String(),
						Slot:       notice.Slot,
						Mention:    mention,
						ReceivedAt: time.Now(),
					})
					continue
				}
				fetches.Go(func() error {
					s.fetch(fctx, handle, notice, mention)
					return nil
				})
			}
		})
	}

	err = g.Wait()
	fetches.Wait()
	return err
}

func (s *Stream) fetch(ctx context.Context, handle func(context.Context, StreamEvent), notice *LogNotice, mention string) {
	received := time.Now()
	tx, err := s.client.FetchTransaction(ctx, notice.Signature)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WarnContext(ctx, "failed to fetch streamed transaction",
				"signature", notice.Signature.String(),
				"error", err,
			)
		}
		return
	}

	kind := EventTransaction
	if tx.Err != nil {
		kind = EventFailedTransaction
	}
	s.emit(ctx, handle, StreamEvent{
		Kind:       kind,
		Signature:  tx.Signature,
		Slot:       tx.Slot,
		Mention:    mention,
		Tx:         tx,
		ReceivedAt: received,
	})
}

func (s *Stream) emit(ctx context.Context, handle func(context.Context, StreamEvent), ev StreamEvent) {
	s.metrics.RecordStreamEvent(string(ev.Kind))
	handle(ctx, ev)
}

// NewWSDialer returns a Dialer for a websocket RPC endpoint.
func NewWSDialer(url string) Dialer {
	return func(ctx context.Context) (LogSource, error) {
		client, err := ws.Connect(ctx, url)
		if err != nil {
			return nil, err
		}
		return &wsLogSource{client: client}, nil
	}
}

type wsLogSource struct {
	client *ws.Client
}

func (w *wsLogSource) SubscribeMentions(_ context.Context, account solana.PublicKey) (LogSubscription, error) {
	sub, err := w.client.LogsSubscribeMentions(account, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, err
	}
	return &wsLogSubscription{sub: sub}, nil
}

func (w *wsLogSource) Close() {
	w.client.Close()
}

type wsLogSubscription struct {
	sub *ws.LogSubscription
}

func (w *wsLogSubscription) Recv(ctx context.Context) (*LogNotice, error) {
	res, err := w.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return &LogNotice{
		Signature: res.Value.Signature,
		Slot:      res.Context.Slot,
		Failed:    res.Value.Err != nil,
	}, nil
}

func (w *wsLogSubscription) Unsubscribe() {
	w.sub.Unsubscribe()
}
