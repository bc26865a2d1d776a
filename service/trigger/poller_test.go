package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
)

const jupMint = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"

func TestTargets(t *testing.T) {
	reg := arb.DefaultRegistry()

	sol := reg.Lookup(arb.NativeMint)
	assert.Equal(t, []string{arb.USDCMint, arb.USDTMint}, Targets(sol, arb.WatchEntry{Target: jupMint}, arb.USDCMint))

	wsol := arb.TokenMeta{Mint: "x", Symbol: "WSOL", Decimals: 9}
	assert.Equal(t, []string{arb.USDCMint, arb.USDTMint}, Targets(wsol, arb.WatchEntry{}, arb.USDCMint))

	jup := reg.Lookup(jupMint)
	assert.Equal(t, []string{arb.USDCMint}, Targets(jup, arb.WatchEntry{}, arb.USDCMint))
	assert.Equal(t, []string{arb.USDTMint}, Targets(jup, arb.WatchEntry{Target: arb.USDTMint}, arb.USDCMint))
}

func TestPoller_Triggers(t *testing.T) {
	entries := []arb.WatchEntry{
		{Mint: arb.NativeMint, From: 0.1, To: 1, Steps: 3, MinProfit: 0.0001},
		{Mint: jupMint, From: 10, To: 100, Steps: 4, MinProfit: 0.01},
	}
	p := NewPoller(entries, arb.USDCMint, time.Second, arb.DefaultRegistry(), &recordingDispatcher{}, testLogger())

	trigs := p.Triggers()
	require.Len(t, trigs, 2)
	assert.Equal(t, arb.SourcePoll, trigs[0].Source)
	assert.Equal(t, arb.QuoteRegular, trigs[0].Mode)
	assert.Equal(t, uint8(9), trigs[0].Mother.Decimals)
	assert.Equal(t, []string{arb.USDCMint, arb.USDTMint}, trigs[0].Targets)
	assert.Equal(t, "JUP", trigs[1].Mother.Symbol)
	assert.Equal(t, []string{arb.USDCMint}, trigs[1].Targets)
	assert.Equal(t, 4, trigs[1].Steps)
}

func TestPoller_RunTicksImmediately(t *testing.T) {
	d := &recordingDispatcher{}
	entries := []arb.WatchEntry{{Mint: jupMint, From: 1, To: 2, Steps: 2}}
	p := NewPoller(entries, arb.USDCMint, time.Hour, arb.DefaultRegistry(), d, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(d.Triggers()) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Len(t, d.Triggers(), 1)
}

func TestPoller_RunKeepsTicking(t *testing.T) {
	d := &recordingDispatcher{}
	entries := []arb.WatchEntry{{Mint: jupMint, From: 1, To: 2, Steps: 2}}
	p := NewPoller(entries, arb.USDCMint, 5*time.Millisecond, arb.DefaultRegistry(), d, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return len(d.Triggers()) >= 3 }, time.Second, time.Millisecond)
}

func TestPoller_TickCountsAccepted(t *testing.T) {
	d := &recordingDispatcher{reject: true}
	entries := []arb.WatchEntry{{Mint: jupMint, From: 1, To: 2, Steps: 2}}
	p := NewPoller(entries, arb.USDCMint, time.Second, arb.DefaultRegistry(), d, testLogger())
	assert.Equal(t, 0, p.Tick())
}
