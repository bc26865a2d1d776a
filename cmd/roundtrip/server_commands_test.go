package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/client"
)

func TestHealthCommand_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Engine is healthy")
	assert.NotContains(t, out, "In flight")
}

func TestHealthCommand_Details(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.Status{
			Uptime:         "2m0s",
			Live:           true,
			NonceBlockhash: "GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W",
			NonceAge:       "1.2s",
			InFlight:       3,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "server", "health", "--details")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode:      live, up 2m0s")
	assert.Contains(t, out, "Nonce age: 1.2s")
	assert.Contains(t, out, "In flight: 3")
}

func TestHealthCommand_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "database unavailable"})
	}))
	defer server.Close()

	_, err := runApp(t, "--server-url", server.URL, "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status: 503 (database unavailable)")
}

func TestHealthCommand_Unreachable(t *testing.T) {
	_, err := runApp(t, "--server-url", "http://127.0.0.1:1", "server", "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestVersionCommand(t *testing.T) {
	out, err := runApp(t, "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "roundtrip dev (commit unknown")
}
