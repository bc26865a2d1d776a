package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/client"
)

func fakeEngine(t *testing.T) *httptest.Server {
	t.Helper()
	landed := "jito"
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.Status{
			StartedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Uptime:      "1h0m0s",
			Live:        true,
			PollQuotes:  true,
			PollDriver:  "local",
			SOLPriceUSD: 151.5,
			Channels:    []string{"jito", "rpc"},
			Watchlist: []client.WatchlistEntry{
				{Mint: "So11111111111111111111111111111111111111112", Symbol: "SOL", From: 1, To: 10, Steps: 5},
			},
			Counts: map[string]int64{"landed": 3, "failed": 1},
		})
	})
	mux.HandleFunc("GET /api/v1/submissions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "landed", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"submissions": []client.Submission{
				{ID: 7, Source: "poll", MotherSymbol: "SOL", InAmount: 1_000_000_000, NetProfit: 42, Status: "landed", LandedChannel: &landed},
			},
		})
	})
	mux.HandleFunc("GET /api/v1/submissions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "submission not found"})
			return
		}
		json.NewEncoder(w).Encode(client.Submission{
			ID:           7,
			Source:       "big_trade",
			MotherSymbol: "SOL",
			Status:       "landed",
			Channels: []client.ChannelAttempt{
				{Channel: "jito", Signature: "sig1", Attempts: 1},
				{Channel: "rpc", Attempts: 2, Error: "blockhash not found"},
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestStatusCommand(t *testing.T) {
	server := fakeEngine(t)
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Live:         true")
	assert.Contains(t, out, "$151.50")
	assert.Contains(t, out, "[jito rpc]")
	assert.Contains(t, out, "SOL")
	assert.Contains(t, out, "landed")
}

func TestSubmissionsList(t *testing.T) {
	server := fakeEngine(t)
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "submissions", "list", "--status", "landed", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "jito")
	assert.Contains(t, out, "Total: 1 submissions")
}

func TestSubmissionsList_InvalidLimit(t *testing.T) {
	_, err := runApp(t, "submissions", "list", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be between")
}

func TestSubmissionsGet(t *testing.T) {
	server := fakeEngine(t)
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "submissions", "get", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "big_trade")
	assert.Contains(t, out, "sig1")
	assert.Contains(t, out, "error: blockhash not found")
}

func TestSubmissionsGet_NotFound(t *testing.T) {
	server := fakeEngine(t)
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "submissions", "get", "8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submission not found")
}

func TestSubmissionsGet_BadID(t *testing.T) {
	_, err := runApp(t, "submissions", "get", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid submission ID")
}
