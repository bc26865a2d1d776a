package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"roundtrip"}, args...))
	return out.String(), err
}

func TestSampleCommand_JSON(t *testing.T) {
	out, err := runApp(t, "--json", "sample", "--mint", "USDC", "--from", "1", "--to", "100", "--steps", "3")
	require.NoError(t, err)

	var grid []uint64
	require.NoError(t, json.Unmarshal([]byte(out), &grid))
	assert.Equal(t, []uint64{1_000_000, 10_000_000, 100_000_000}, grid)
}

func TestSampleCommand_SingleStep(t *testing.T) {
	out, err := runApp(t, "sample", "--mint", "SOL", "--from", "2", "--to", "50", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "SOL (9 decimals)")
	assert.Contains(t, out, "2000000000")
}

func TestSampleCommand_InvalidRange(t *testing.T) {
	_, err := runApp(t, "sample", "--from", "10", "--to", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, arb.ErrInvalidRange)
}

func TestCostCommand_NativeFixedTip(t *testing.T) {
	out, err := runApp(t, "--json", "cost", "--mint", "SOL", "--gross", "0.01", "--relay-tip", "0.001", "--profit-share", "0")
	require.NoError(t, err)

	var res struct {
		GrossProfit int64   `json:"gross_profit"`
		TotalCost   int64   `json:"total_cost"`
		NetProfit   int64   `json:"net_profit"`
		RelayFeeSOL float64 `json:"relay_fee_sol"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, int64(10_000_000), res.GrossProfit)
	assert.InDelta(t, 1_005_000, res.TotalCost, 1)
	assert.Equal(t, res.GrossProfit-res.TotalCost, res.NetProfit)
	assert.InDelta(t, 0.001, res.RelayFeeSOL, 1e-12)
}

func TestCostCommand_ProfitShareConvertsThroughPrice(t *testing.T) {
	out, err := runApp(t, "--json", "cost", "--mint", "USDC", "--gross", "15", "--profit-share", "0.5", "--sol-price", "150")
	require.NoError(t, err)

	var res struct {
		TotalCost   int64   `json:"total_cost"`
		RelayFeeSOL float64 `json:"relay_fee_sol"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	// 15 USDC is 0.1 SOL gross, half of it tips the relay
	assert.InDelta(t, 0.05, res.RelayFeeSOL, 1e-9)
	assert.InDelta(t, 7_500_750, res.TotalCost, 2)
}

// fakeJupiter quotes 1 SOL = 150 USDC and pays 1% more SOL on the way back.
func fakeJupiter(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
		require.NoError(t, err)

		var out uint64
		if q.Get("inputMint") == arb.NativeMint {
			out = amount / 1000 * 150
		} else {
			out = amount * 1000 / 150 * 101 / 100
		}
		json.NewEncoder(w).Encode(map[string]any{
			"inputMint":            q.Get("inputMint"),
			"inAmount":             q.Get("amount"),
			"outputMint":           q.Get("outputMint"),
			"outAmount":            strconv.FormatUint(out, 10),
			"otherAmountThreshold": strconv.FormatUint(out, 10),
			"swapMode":             "ExactIn",
			"routePlan":            []any{},
		})
	}))
}

func TestQuoteCommand_FindsOpportunity(t *testing.T) {
	server := fakeJupiter(t)
	defer server.Close()

	out, err := runApp(t, "--json", "quote",
		"--jupiter-url", server.URL,
		"--target", "USDC",
		"--from", "1", "--to", "1", "--steps", "1",
		"--relay-tip", "0.001", "--profit-share", "0",
		"SOL",
	)
	require.NoError(t, err)

	var res struct {
		Quotes int              `json:"quotes"`
		Failed int              `json:"failed"`
		Kept   int              `json:"kept"`
		Best   *arb.Opportunity `json:"best"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Quotes)
	assert.Equal(t, 0, res.Failed)
	require.NotNil(t, res.Best)
	assert.Equal(t, int64(10_000_000), res.Best.GrossProfit)
	assert.InDelta(t, 8_995_000, res.Best.NetProfit, 1)
	assert.Equal(t, arb.USDCMint, res.Best.Result.Target)
}

func TestQuoteCommand_TextOutputPrintsEvaluations(t *testing.T) {
	server := fakeJupiter(t)
	defer server.Close()

	out, err := runApp(t, "quote",
		"--jupiter-url", server.URL,
		"--from", "1", "--to", "4", "--steps", "3",
		"--min-profit", "100",
		"SOL",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "3/3 round trips quoted")
	assert.Contains(t, out, "No opportunity above the minimum profit")
}

func TestQuoteCommand_RejectsMotherAsTarget(t *testing.T) {
	_, err := runApp(t, "quote", "--target", "USDC", "--jupiter-url", "http://unused", "USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is the mother token")
}

func TestMotherArgument(t *testing.T) {
	for _, cmd := range []string{"quote", "probe"} {
		t.Run(cmd, func(t *testing.T) {
			_, err := runApp(t, cmd, "--jupiter-url", "http://unused")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "mother mint or symbol is required")

			_, err = runApp(t, cmd, "SOL", "--jupiter-url", "http://unused")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "flags go before MOTHER")
		})
	}
}

func TestProbeUser(t *testing.T) {
	key, err := probeUser(arb.USDCMint, "")
	require.NoError(t, err)
	assert.Equal(t, arb.USDCMint, key.String())

	_, err = probeUser("", "")
	assert.Error(t, err)

	_, err = probeUser("not-a-key", "")
	assert.Error(t, err)
}
