package nats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	testTrigger = arb.Trigger{
		Source: arb.SourceBigTrade,
		TxID:   "orig-tx",
		Mother: arb.TokenMeta{Mint: arb.NativeMint, Symbol: "SOL", Decimals: 9},
		Mode:   arb.QuoteSizeAware,
	}
	testOpp = arb.Opportunity{
		Result:      arb.QuoteResult{InAmount: 1000, OutAmount: 1200, Target: arb.USDCMint},
		GrossProfit: 200,
		TotalCost:   50,
		NetProfit:   150,
	}
)

func TestObserver_OpportunityFound(t *testing.T) {
	pub := NewMockPublisher()
	NewObserver(pub, testLogger()).OpportunityFound(context.Background(), testTrigger, testOpp)

	events := pub.Opportunities()
	require.Len(t, events, 1)
	assert.Equal(t, "big_trade", events[0].Source)
	assert.Equal(t, "size_aware", events[0].Mode)
	assert.Equal(t, int64(150), events[0].NetProfit)
	assert.Equal(t, "arb.opportunities."+arb.NativeMint, OpportunitySubject(events[0].MotherMint))
}

func TestObserver_Submitted(t *testing.T) {
	pub := NewMockPublisher()
	report := &arb.ExecutionReport{
		PreviewSignature: "preview",
		Outcomes: []arb.ChannelOutcome{
			{Channel: "jito", Attempts: 1, Err: errors.New("rejected")},
			{Channel: "rpc", Signature: "landed-sig", Attempts: 2},
		},
	}
	NewObserver(pub, testLogger()).Submitted(context.Background(), testTrigger, testOpp, report, nil)

	events := pub.Submissions()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, arb.StatusLanded, ev.Status)
	assert.Equal(t, "rpc", ev.LandedChannel)
	assert.Equal(t, "landed-sig", ev.LandedSignature)
	require.Len(t, ev.Channels, 2)
	assert.Equal(t, "rejected", ev.Channels[0].Error)
}

func TestNewSubmissionEvent_Statuses(t *testing.T) {
	build := NewSubmissionEvent(testTrigger, testOpp, nil, &arb.BuildError{Stage: "nonce", Err: errors.New("missing")})
	assert.Equal(t, arb.StatusBuildFailed, build.Status)

	failed := NewSubmissionEvent(testTrigger, testOpp, &arb.ExecutionReport{}, &arb.SubmissionError{})
	assert.Equal(t, arb.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Error)
}

func TestObserver_SwallowsPublishErrors(t *testing.T) {
	pub := NewMockPublisher()
	pub.SetPublishError(errors.New("nats down"))
	obs := NewObserver(pub, testLogger())

	assert.NotPanics(t, func() {
		obs.OpportunityFound(context.Background(), testTrigger, testOpp)
		obs.Submitted(context.Background(), testTrigger, testOpp, nil, nil)
	})
	assert.Empty(t, pub.Opportunities())
}
