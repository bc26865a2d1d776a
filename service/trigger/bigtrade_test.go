package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/solana"
)

const (
	jupiterV6   = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"
	unknownProg = "Prog1111111111111111111111111111111111111111"
	bonkMint    = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

var solEntry = arb.WatchEntry{
	Mint:              arb.NativeMint,
	From:              0.5,
	To:                5,
	Steps:             4,
	MinProfit:         0.001,
	BigTradeThreshold: 100,
}

var usdcEntry = arb.WatchEntry{
	Mint:              arb.USDCMint,
	From:              10,
	To:                1000,
	Steps:             5,
	MinProfit:         0.05,
	BigTradeThreshold: 10_000,
}

func txEvent(programs []string, changes ...solana.BalanceChange) solana.StreamEvent {
	return solana.StreamEvent{
		Kind:      solana.EventTransaction,
		Signature: "sig-1",
		Tx: &solana.LedgerTransaction{
			Signature: "sig-1",
			BlockTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Changes:   changes,
			Programs:  programs,
		},
	}
}

func change(mint string, pre, post float64) solana.BalanceChange {
	return solana.BalanceChange{Mint: mint, Pre: pre, Post: post, Delta: post - pre}
}

func newBigTrade(d Dispatcher, audit arb.AuditSink) *BigTrade {
	return NewBigTrade([]arb.WatchEntry{solEntry, usdcEntry}, arb.DefaultRegistry(), audit, d, nil, testLogger())
}

func TestExtract_BigSOLSell(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	// SOL moved 2.5x its threshold, USDC only 2x.
	ev := txEvent([]string{unknownProg, jupiterV6},
		change(arb.NativeMint, 500, 250),
		change(arb.USDCMint, 0, 20_000),
		change(bonkMint, 10, 12),
	)

	got, ok := bt.Extract(ev)
	require.True(t, ok)
	assert.Equal(t, "sig-1", got.TxID)
	assert.Equal(t, "SOL", got.Mother.Symbol)
	assert.Equal(t, solEntry, got.Policy)
	assert.Equal(t, []string{arb.USDCMint, bonkMint}, got.UniqueMints)
	assert.Equal(t, []string{"Jupiter v6"}, got.Programs)

	trig := got.Trigger()
	assert.Equal(t, arb.SourceBigTrade, trig.Source)
	assert.Equal(t, arb.QuoteSizeAware, trig.Mode)
	assert.Equal(t, []string{arb.USDCMint, bonkMint}, trig.Targets)
	assert.Equal(t, 0.5, trig.From)
	assert.Equal(t, 4, trig.Steps)
}

func TestExtract_RanksMotherByThresholdMultiple(t *testing.T) {
	tests := []struct {
		name    string
		changes []solana.BalanceChange
		mother  string
		targets []string
	}{
		{
			name: "large SOL move beats a nominally larger USDC move",
			changes: []solana.BalanceChange{
				change(arb.NativeMint, 1_500, 500),
				change(arb.USDCMint, 0, 10_001),
			},
			mother:  arb.NativeMint,
			targets: []string{arb.USDCMint},
		},
		{
			name: "USDC wins when it moved further past its threshold",
			changes: []solana.BalanceChange{
				change(arb.NativeMint, 400, 250),
				change(arb.USDCMint, 0, 50_000),
			},
			mother:  arb.USDCMint,
			targets: []string{arb.NativeMint},
		},
		{
			name: "equal multiples keep the first candidate",
			changes: []solana.BalanceChange{
				change(arb.USDCMint, 20_000, 0),
				change(arb.NativeMint, 0, 200),
			},
			mother:  arb.USDCMint,
			targets: []string{arb.NativeMint},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
			got, ok := bt.Extract(txEvent([]string{jupiterV6}, tt.changes...))
			require.True(t, ok)
			assert.Equal(t, tt.mother, got.Mother.Mint)
			assert.Equal(t, tt.targets, got.UniqueMints)
		})
	}
}

// A delta below every threshold yields no event and the pipeline is never invoked.
func TestHandle_BelowThresholdNeverDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	audit := &recordingAudit{}
	bt := newBigTrade(d, audit)

	ev := txEvent([]string{jupiterV6},
		change(arb.NativeMint, 100, 50),
		change(arb.USDCMint, 0, 7_500),
	)
	_, ok := bt.Extract(ev)
	assert.False(t, ok)

	bt.Handle(context.Background(), ev)
	assert.Empty(t, d.Triggers())
	assert.Empty(t, audit.Lines())
}

func TestExtract_ExactlyThresholdIsNotBig(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	_, ok := bt.Extract(txEvent([]string{jupiterV6},
		change(arb.NativeMint, 200, 100),
		change(arb.USDCMint, 0, 10_000),
	))
	assert.False(t, ok)
}

func TestExtract_RequiresRecognizedProgram(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	_, ok := bt.Extract(txEvent([]string{unknownProg},
		change(arb.NativeMint, 500, 250),
		change(arb.USDCMint, 0, 37_500),
	))
	assert.False(t, ok)
}

func TestExtract_RequiresAnotherMint(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	_, ok := bt.Extract(txEvent([]string{jupiterV6}, change(arb.NativeMint, 500, 250)))
	assert.False(t, ok)
}

func TestExtract_FiltersNonTransactionKinds(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	ev := txEvent([]string{jupiterV6},
		change(arb.NativeMint, 500, 250),
		change(arb.USDCMint, 0, 37_500),
	)

	for _, kind := range []solana.EventKind{solana.EventFailedTransaction, solana.EventReconnected} {
		ev.Kind = kind
		_, ok := bt.Extract(ev)
		assert.False(t, ok, kind)
	}

	ev.Kind = solana.EventTransaction
	ev.Tx = nil
	_, ok := bt.Extract(ev)
	assert.False(t, ok)
}

func TestExtract_UnwatchedMintIgnored(t *testing.T) {
	bt := newBigTrade(&recordingDispatcher{}, arb.NopAudit{})
	_, ok := bt.Extract(txEvent([]string{jupiterV6},
		change(bonkMint, 0, 1e12),
		change(arb.USDCMint, 100, 90),
	))
	assert.False(t, ok)
}

func TestHandle_AuditsAndDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	audit := &recordingAudit{}
	bt := newBigTrade(d, audit)

	bt.Handle(context.Background(), txEvent([]string{jupiterV6},
		change(arb.NativeMint, 500, 250),
		change(arb.USDCMint, 0, 20_000),
	))

	trigs := d.Triggers()
	require.Len(t, trigs, 1)
	assert.Equal(t, "sig-1", trigs[0].TxID)

	lines := audit.Lines()
	require.Len(t, lines, 1)
	block := lines[0]
	assert.Contains(t, block, "[BIG_TRADE_DISCOVERED]")
	assert.Contains(t, block, "tx_id:     sig-1")
	assert.Contains(t, block, "mother:    SOL ("+arb.NativeMint+")")
	assert.Contains(t, block, "min_profit: 0.001000")
	assert.Contains(t, block, "SOL  delta: -250.000000  pre: 500.000000  post: 250.000000")
	assert.Contains(t, block, "USDC  delta: +20000.000000")
	assert.Contains(t, block, "programs:  Jupiter v6")
}

func TestHandle_DispatcherClosed(t *testing.T) {
	d := &recordingDispatcher{reject: true}
	bt := newBigTrade(d, arb.NopAudit{})
	bt.Handle(context.Background(), txEvent([]string{jupiterV6},
		change(arb.NativeMint, 500, 250),
		change(arb.USDCMint, 0, 37_500),
	))
	assert.Empty(t, d.Triggers())
}
