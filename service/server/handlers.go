package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/db"
)

const (
	maxAddressLength = 100 // Solana addresses are 44 chars, give buffer
	defaultPageSize  = 50
	maxPageSize      = 500
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

	validStatuses = map[string]bool{
		arb.StatusLanded:      true,
		arb.StatusFailed:      true,
		arb.StatusBuildFailed: true,
	}
)

// Status is the engine snapshot served by /api/v1/status.
type Status struct {
	StartedAt      time.Time         `json:"started_at"`
	Uptime         string            `json:"uptime"`
	Live           bool              `json:"live"`
	WatchFlows     bool              `json:"watch_flows"`
	PollQuotes     bool              `json:"poll_quotes"`
	PollDriver     string            `json:"poll_driver"`
	SOLPriceUSD    float64           `json:"sol_price_usd"`
	NonceBlockhash string            `json:"nonce_blockhash,omitempty"`
	NonceAge       string            `json:"nonce_age,omitempty"`
	InFlight       int64             `json:"in_flight"`
	Channels       []string          `json:"channels"`
	Watchlist      []WatchlistStatus `json:"watchlist"`
	Counts         map[string]int64  `json:"submission_counts,omitempty"`
}

// WatchlistStatus is one watched mother token.
type WatchlistStatus struct {
	Mint              string  `json:"mint"`
	Symbol            string  `json:"symbol"`
	From              float64 `json:"from"`
	To                float64 `json:"to"`
	Steps             int     `json:"steps"`
	MinProfit         float64 `json:"min_profit"`
	BigTradeThreshold float64 `json:"big_trade_threshold"`
}

// handleHealth returns OK when the process is up and the ledger, if
// configured, answers a ping.
// GET /healthz
func handleHealth(store SubmissionStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.Ping(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				writeError(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// handleStatus returns the engine status snapshot.
// GET /api/v1/status
func handleStatus(status StatusProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			writeError(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, status.Status(r.Context()), http.StatusOK)
	})
}

// handleListSubmissions lists ledger rows newest first.
// GET /api/v1/submissions?mother=MINT&status=landed&limit=N&offset=N
func handleListSubmissions(store SubmissionStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, "submission ledger not configured", http.StatusServiceUnavailable)
			return
		}

		query := r.URL.Query()
		params := db.ListSubmissionsParams{
			MotherMint: query.Get("mother"),
			Status:     query.Get("status"),
		}

		if params.MotherMint != "" {
			if err := validateAddress(params.MotherMint); err != nil {
				logger.Debug("invalid mother", "mother", params.MotherMint, "error", err)
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if params.Status != "" && !validStatuses[params.Status] {
			writeError(w, "invalid status: must be 'landed', 'failed' or 'build_failed'", http.StatusBadRequest)
			return
		}

		limit, err := parseIntParam(query.Get("limit"), defaultPageSize, 1, maxPageSize, "limit")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseIntParam(query.Get("offset"), 0, 0, -1, "offset")
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.Limit = int32(limit)
		params.Offset = int32(offset)

		subs, err := store.ListSubmissions(r.Context(), params)
		if err != nil {
			logger.Error("failed to list submissions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if subs == nil {
			subs = []*db.Submission{}
		}

		writeJSON(w, map[string]interface{}{
			"submissions": subs,
			"count":       len(subs),
			"limit":       params.Limit,
			"offset":      params.Offset,
		}, http.StatusOK)
	})
}

// handleGetSubmission returns a single ledger row.
// GET /api/v1/submissions/{id}
func handleGetSubmission(store SubmissionStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, "submission ledger not configured", http.StatusServiceUnavailable)
			return
		}

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, "invalid submission id", http.StatusBadRequest)
			return
		}

		sub, err := store.GetSubmission(r.Context(), id)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "submission not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get submission", "id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, sub, http.StatusOK)
	})
}

// parseIntParam parses an optional integer query parameter. max < 0 means unbounded.
func parseIntParam(raw string, def, min, max int, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errorf("invalid %s parameter: must be an integer", name)
	}
	if v < min {
		return 0, errorf("%s must be at least %d", name, min)
	}
	if max >= 0 && v > max {
		return 0, errorf("%s cannot exceed %d", name, max)
	}
	return v, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a mint address for security and format.
func validateAddress(address string) error {
	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
