package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
)

func TestExecute(t *testing.T) {
	rig := newTestRig(t)
	fallback := &fakeSender{name: "rpc"}
	router := NewRouter(RouterConfig{RetryCount: 1}, nil, fallback, rig.nonce, nil, testLogger())
	exec := NewExecutor(rig.builder, router, arb.FeeModel{ComputeUnits: 400_000, PriorityFeeMicroLamports: 1000}, testLogger())

	trig := arb.Trigger{
		Source:    arb.SourcePoll,
		Mother:    arb.TokenMeta{Mint: arb.NativeMint, Symbol: "SOL", Decimals: 9},
		MinProfit: 0.002,
	}
	report, err := exec.Execute(context.Background(), trig, testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000), rig.swaps.gotMinOut)
	landed, ok := report.Landed()
	require.True(t, ok)
	assert.Equal(t, "rpc", landed.Channel)
	assert.NotEmpty(t, report.PreviewSignature)

	// compute budget instructions follow the advance-nonce instruction
	require.Len(t, fallback.txs, 1)
	assert.Len(t, fallback.txs[0].Message.Instructions, 4)
}

func TestExecute_NegativeMinProfitClamped(t *testing.T) {
	rig := newTestRig(t)
	router := NewRouter(RouterConfig{RetryCount: 1}, nil, &fakeSender{name: "rpc"}, rig.nonce, nil, testLogger())
	exec := NewExecutor(rig.builder, router, arb.FeeModel{}, testLogger())

	trig := arb.Trigger{Mother: arb.TokenMeta{Decimals: 6}, MinProfit: -1}
	_, err := exec.Execute(context.Background(), trig, testOpportunity())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rig.swaps.gotMinOut)
}

func TestExecute_BuildErrorNothingSent(t *testing.T) {
	rig := newTestRig(t)
	rig.nonce.snap = nil
	fallback := &fakeSender{name: "rpc"}
	router := NewRouter(RouterConfig{RetryCount: 1}, nil, fallback, rig.nonce, nil, testLogger())
	exec := NewExecutor(rig.builder, router, arb.FeeModel{}, testLogger())

	_, err := exec.Execute(context.Background(), arb.Trigger{}, testOpportunity())
	assert.ErrorIs(t, err, arb.ErrBuild)
	assert.Equal(t, 0, fallback.callCount())
}
