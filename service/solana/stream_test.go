package solana

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	notices chan *LogNotice
	errs    chan error
}

func (f *fakeSubscription) Recv(ctx context.Context) (*LogNotice, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-f.errs:
		return nil, err
	case n := <-f.notices:
		return n, nil
	}
}

func (f *fakeSubscription) Unsubscribe() {}

type fakeSource struct {
	mu   sync.Mutex
	subs map[solana.PublicKey]*fakeSubscription
}

func (f *fakeSource) SubscribeMentions(_ context.Context, account solana.PublicKey) (LogSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{notices: make(chan *LogNotice, 8), errs: make(chan error, 1)}
	f.subs[account] = sub
	return sub, nil
}

func (f *fakeSource) Close() {}

func (f *fakeSource) sub(account solana.PublicKey) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[account]
}

type eventLog struct {
	mu     sync.Mutex
	events []StreamEvent
}

func (l *eventLog) handle(_ context.Context, ev StreamEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []StreamEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StreamEvent(nil), l.events...)
}

func (l *eventLog) count(kind EventKind) int {
	n := 0
	for _, ev := range l.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestStream_DeliversOncePerSignature(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	src := &fakeSource{subs: map[solana.PublicKey]*fakeSubscription{}}
	dial := func(ctx context.Context) (LogSource, error) { return src, nil }
	rpcClient := &mockRPCClient{byDefault: swapResult(t, payer)}

	s := NewStream(StreamConfig{Mentions: []solana.PublicKey{mintA, mintB}}, dial, newTestClient(rpcClient), nil, testLogger())
	log := &eventLog{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, log.handle) }()

	require.Eventually(t, func() bool { return src.sub(mintA) != nil && src.sub(mintB) != nil }, time.Second, time.Millisecond)

	sig := solana.SignatureFromBytes(make([]byte, 64))
	src.sub(mintA).notices <- &LogNotice{Signature: sig, Slot: 7}
	src.sub(mintB).notices <- &LogNotice{Signature: sig, Slot: 7}

	require.Eventually(t, func() bool { return log.count(EventTransaction) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, log.count(EventTransaction))
	assert.Equal(t, 1, rpcClient.callCount())

	ev := log.snapshot()[0]
	require.NotNil(t, ev.Tx)
	assert.Equal(t, payer.String(), ev.Tx.FeePayer)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStream_FailedNoticeSkipsFetch(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	src := &fakeSource{subs: map[solana.PublicKey]*fakeSubscription{}}
	dial := func(ctx context.Context) (LogSource, error) { return src, nil }
	rpcClient := &mockRPCClient{}

	s := NewStream(StreamConfig{Mentions: []solana.PublicKey{mint}}, dial, newTestClient(rpcClient), nil, testLogger())
	log := &eventLog{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.handle)

	require.Eventually(t, func() bool { return src.sub(mint) != nil }, time.Second, time.Millisecond)
	src.sub(mint).notices <- &LogNotice{Signature: solana.SignatureFromBytes(make([]byte, 64)), Failed: true}

	require.Eventually(t, func() bool { return log.count(EventFailedTransaction) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, rpcClient.callCount())
}

func TestStream_ReconnectsAfterReceiveError(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	var dials atomic.Int32
	var current atomic.Pointer[fakeSource]
	dial := func(ctx context.Context) (LogSource, error) {
		n := dials.Add(1)
		if n == 2 {
			return nil, errors.New("connection refused")
		}
		src := &fakeSource{subs: map[solana.PublicKey]*fakeSubscription{}}
		current.Store(src)
		return src, nil
	}

	s := NewStream(StreamConfig{
		Mentions:       []solana.PublicKey{mint},
		ReconnectDelay: 5 * time.Millisecond,
	}, dial, newTestClient(&mockRPCClient{}), nil, testLogger())
	log := &eventLog{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, log.handle)

	require.Eventually(t, func() bool {
		src := current.Load()
		return src != nil && src.sub(mint) != nil
	}, time.Second, time.Millisecond)
	current.Load().sub(mint).errs <- errors.New("websocket closed")

	require.Eventually(t, func() bool { return log.count(EventReconnected) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(3), dials.Load())
}

func TestStream_NoMentions(t *testing.T) {
	s := NewStream(StreamConfig{}, nil, nil, nil, testLogger())
	assert.Error(t, s.Run(context.Background(), func(context.Context, StreamEvent) {}))
}

func TestIngestionError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&IngestionError{Stage: "receive", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "receive")
}
