package arb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrice float64

func (p staticPrice) Price() float64 { return float64(p) }

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []Opportunity
	report *ExecutionReport
	err    error
}

func (e *fakeExecutor) Execute(ctx context.Context, trig Trigger, opp Opportunity) (*ExecutionReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, opp)
	return e.report, e.err
}

type fakeObserver struct {
	mu        sync.Mutex
	found     int
	submitted int
	lastErr   error
}

func (o *fakeObserver) OpportunityFound(ctx context.Context, trig Trigger, opp Opportunity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.found++
}

func (o *fakeObserver) Submitted(ctx context.Context, trig Trigger, opp Opportunity, report *ExecutionReport, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitted++
	o.lastErr = err
}

func newTestPipeline(quoter Quoter, live bool, exec Executor, trades AuditSink, observers ...Observer) *Pipeline {
	reg := DefaultRegistry()
	return NewPipeline(
		PipelineConfig{Fee: zeroFee, Live: live},
		NewFanout(quoter, 0, nil, nil, testLogger()),
		NewEvaluator(reg, nil, nil),
		staticPrice(150),
		exec,
		reg,
		trades,
		nil,
		testLogger(),
		observers...,
	)
}

func usdcTrigger() Trigger {
	return Trigger{
		Source:  SourcePoll,
		Mother:  usdc,
		Targets: []string{USDTMint, "T2"},
		From:    1,
		To:      4,
		Steps:   3,
		Mode:    QuoteRegular,
	}
}

func TestPipeline_FanoutFailuresReachEvaluatorAsFewerResults(t *testing.T) {
	failures := 0
	var mu sync.Mutex
	quoter := &fakeQuoter{
		bonus: 1,
		fail: func(in, out string, amount uint64) bool {
			mu.Lock()
			defer mu.Unlock()
			if out == "T2" && failures < 2 {
				failures++
				return true
			}
			return false
		},
	}
	p := newTestPipeline(quoter, false, nil, nil)

	res, err := p.Run(context.Background(), usdcTrigger())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Quotes)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, OutcomeSimulated, res.Outcome)
}

func TestPipeline_SimulationDoesNotExecute(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeQuoter{bonus: 5}, false, exec, nil)

	res, err := p.Run(context.Background(), usdcTrigger())
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.Equal(t, OutcomeSimulated, res.Outcome)
	assert.Empty(t, exec.calls)
}

func TestPipeline_NilRegistryFallsBackToDefaults(t *testing.T) {
	exec := &fakeExecutor{report: &ExecutionReport{
		PreviewSignature: "sig",
		Outcomes:         []ChannelOutcome{{Channel: "rpc", Signature: "sig", Attempts: 1}},
	}}
	trades := &recordingAudit{}
	p := NewPipeline(
		PipelineConfig{Fee: zeroFee, Live: true},
		NewFanout(&fakeQuoter{bonus: 5}, 0, nil, nil, testLogger()),
		NewEvaluator(nil, nil, nil),
		staticPrice(150),
		exec,
		nil,
		trades,
		nil,
		testLogger(),
	)

	trig := usdcTrigger()
	trig.Source = SourceBigTrade
	trig.TxID = "origin"
	res, err := p.Run(context.Background(), trig)
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	assert.Equal(t, OutcomeSubmitted, res.Outcome)

	lines := trades.Lines()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "unique_tokens=[USDT, ?]")
}

func TestPipeline_LiveExecutesBestOnce(t *testing.T) {
	exec := &fakeExecutor{report: &ExecutionReport{
		PreviewSignature: "sig",
		Outcomes:         []ChannelOutcome{{Channel: "rpc", Signature: "sig", Attempts: 1}},
	}}
	obs := &fakeObserver{}
	trades := &recordingAudit{}
	p := newTestPipeline(&fakeQuoter{bonus: 5}, true, exec, trades, obs)

	trig := usdcTrigger()
	trig.Source = SourceBigTrade
	trig.TxID = "origin"
	res, err := p.Run(context.Background(), trig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, res.Outcome)

	require.Len(t, exec.calls, 1)
	// Every unit earns the same 10 raw units; the earliest wins.
	assert.Equal(t, int64(10), exec.calls[0].NetProfit)
	assert.Equal(t, 1, obs.found)
	assert.Equal(t, 1, obs.submitted)

	lines := trades.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[BIG_TRADE] Profitable opportunity found")
	assert.Contains(t, lines[0], "tx_id=origin")
	assert.Contains(t, lines[1], "[SUBMIT_SUCCESS]")
	assert.Contains(t, lines[1], "original_tx_id=origin")
	assert.Contains(t, lines[1], "submitted_tx_signature=sig")
}

func TestPipeline_SubmissionFailureIsReturned(t *testing.T) {
	subErr := &SubmissionError{Outcomes: []ChannelOutcome{{Channel: "rpc", Attempts: 3, Err: errors.New("blockhash not found")}}}
	exec := &fakeExecutor{report: &ExecutionReport{Outcomes: subErr.Outcomes}, err: subErr}
	obs := &fakeObserver{}
	p := newTestPipeline(&fakeQuoter{bonus: 5}, true, exec, nil, obs)

	res, err := p.Run(context.Background(), usdcTrigger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmission)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, subErr, obs.lastErr)
}

func TestPipeline_NoOpportunity(t *testing.T) {
	exec := &fakeExecutor{}
	p := newTestPipeline(&fakeQuoter{}, true, exec, nil)

	res, err := p.Run(context.Background(), usdcTrigger())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOpportunity, res.Outcome)
	assert.Nil(t, res.Best)
	assert.Empty(t, exec.calls)
}

func TestPipeline_InvalidRange(t *testing.T) {
	quoter := &fakeQuoter{}
	p := newTestPipeline(quoter, false, nil, nil)

	trig := usdcTrigger()
	trig.From = 0
	res, err := p.Run(context.Background(), trig)
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, 0, quoter.Calls())
}

func TestPipeline_SkipsMotherAsTarget(t *testing.T) {
	quoter := &fakeQuoter{}
	p := newTestPipeline(quoter, false, nil, nil)

	trig := usdcTrigger()
	trig.Targets = []string{USDCMint}
	res, err := p.Run(context.Background(), trig)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Quotes)
	assert.Equal(t, 0, quoter.Calls())
}

func TestBuildError_MatchesRootAndCause(t *testing.T) {
	cause := errors.New("no route")
	err := error(&BuildError{Stage: "swap-instructions", Err: cause})
	assert.ErrorIs(t, err, ErrBuild)
	assert.ErrorIs(t, err, cause)
}
