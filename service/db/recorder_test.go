package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) CreateSubmission(ctx context.Context, params CreateSubmissionParams) (*Submission, error) {
	args := m.Called(ctx, params)
	if s, ok := args.Get(0).(*Submission); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

var (
	recTrigger = arb.Trigger{
		Source: arb.SourceBigTrade,
		TxID:   "orig",
		Mother: arb.TokenMeta{Mint: arb.NativeMint, Symbol: "SOL", Decimals: 9},
	}
	recOpp = arb.Opportunity{
		Result:      arb.QuoteResult{InAmount: 100, OutAmount: 130, Target: arb.USDCMint},
		GrossProfit: 30,
		TotalCost:   10,
		NetProfit:   20,
	}
)

func TestSubmissionParams_Landed(t *testing.T) {
	report := &arb.ExecutionReport{
		PreviewSignature: "preview",
		Outcomes: []arb.ChannelOutcome{
			{Channel: "nozomi", Attempts: 2, Err: errors.New("timeout")},
			{Channel: "jito", Signature: "sig", Attempts: 1},
		},
	}
	p := SubmissionParams(recTrigger, recOpp, report, nil)

	assert.Equal(t, arb.StatusLanded, p.Status)
	assert.Equal(t, "orig", *p.TriggerTx)
	assert.Equal(t, "jito", *p.LandedChannel)
	assert.Equal(t, "preview", *p.PreviewSignature)
	assert.Nil(t, p.Error)
	require.Len(t, p.Channels, 2)
	assert.Equal(t, "timeout", p.Channels[0].Error)
	assert.Equal(t, int64(20), p.NetProfit)
}

func TestSubmissionParams_BuildFailure(t *testing.T) {
	trig := recTrigger
	trig.TxID = ""
	p := SubmissionParams(trig, recOpp, nil, &arb.BuildError{Stage: "nonce", Err: errors.New("stale")})

	assert.Equal(t, arb.StatusBuildFailed, p.Status)
	assert.Nil(t, p.TriggerTx)
	assert.Nil(t, p.LandedChannel)
	require.NotNil(t, p.Error)
	assert.Contains(t, *p.Error, "nonce")
}

func TestRecorder_Submitted(t *testing.T) {
	w := &mockWriter{}
	w.On("CreateSubmission", mock.Anything, mock.MatchedBy(func(p CreateSubmissionParams) bool {
		return p.Status == arb.StatusFailed && p.MotherSymbol == "SOL"
	})).Return(nil, errors.New("db down")).Once()

	r := NewRecorder(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.OpportunityFound(context.Background(), recTrigger, recOpp)
	r.Submitted(context.Background(), recTrigger, recOpp, &arb.ExecutionReport{}, &arb.SubmissionError{})

	w.AssertExpectations(t)
}
