package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/db"
)

type fakeStore struct {
	subs    []*db.Submission
	lastArg db.ListSubmissionsParams
	listErr error
	pingErr error
}

func (f *fakeStore) ListSubmissions(ctx context.Context, params db.ListSubmissionsParams) ([]*db.Submission, error) {
	f.lastArg = params
	return f.subs, f.listErr
}

func (f *fakeStore) GetSubmission(ctx context.Context, id int64) (*db.Submission, error) {
	for _, s := range f.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

type fixedStatus Status

func (f fixedStatus) Status(context.Context) Status { return Status(f) }

func testServer(store SubmissionStore) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(":0", fixedStatus{Live: true, PollDriver: "ticker", Channels: []string{"jito", "rpc"}}, store, nil, logger).Handler()
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(t, testServer(nil), "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(t, testServer(&fakeStore{}), "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, testServer(&fakeStore{pingErr: errors.New("down")}), "/healthz").Code)
}

func TestStatus(t *testing.T) {
	rec := do(t, testServer(nil), "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Live)
	assert.Equal(t, "ticker", got.PollDriver)
	assert.Equal(t, []string{"jito", "rpc"}, got.Channels)
}

func TestListSubmissions(t *testing.T) {
	store := &fakeStore{subs: []*db.Submission{{ID: 1, Status: arb.StatusLanded, MotherSymbol: "SOL"}}}
	h := testServer(store)

	t.Run("defaults", func(t *testing.T) {
		rec := do(t, h, "/api/v1/submissions")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int32(defaultPageSize), store.lastArg.Limit)

		var body struct {
			Submissions []*db.Submission `json:"submissions"`
			Count       int              `json:"count"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, "SOL", body.Submissions[0].MotherSymbol)
	})

	t.Run("filters are passed through", func(t *testing.T) {
		rec := do(t, h, "/api/v1/submissions?mother="+arb.NativeMint+"&status=failed&limit=5&offset=10")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, arb.NativeMint, store.lastArg.MotherMint)
		assert.Equal(t, "failed", store.lastArg.Status)
		assert.Equal(t, int32(5), store.lastArg.Limit)
		assert.Equal(t, int32(10), store.lastArg.Offset)
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		rec := do(t, testServer(&fakeStore{}), "/api/v1/submissions")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"submissions":[]`)
	})
}

func TestListSubmissions_PathologicalInput(t *testing.T) {
	h := testServer(&fakeStore{})

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"non-base58 mother", "mother=0OIl", "base58"},
		{"overlong mother", "mother=" + strings.Repeat("A", 200), "too long"},
		{"unknown status", "status=pending", "invalid status"},
		{"non-integer limit", "limit=abc", "must be an integer"},
		{"zero limit", "limit=0", "at least 1"},
		{"huge limit", "limit=100000", "cannot exceed"},
		{"negative offset", "offset=-1", "at least 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "/api/v1/submissions?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestListSubmissions_StoreErrors(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, do(t, testServer(nil), "/api/v1/submissions").Code)
	assert.Equal(t, http.StatusInternalServerError,
		do(t, testServer(&fakeStore{listErr: errors.New("boom")}), "/api/v1/submissions").Code)
}

func TestGetSubmission(t *testing.T) {
	h := testServer(&fakeStore{subs: []*db.Submission{{ID: 7, Status: arb.StatusLanded}}})

	assert.Equal(t, http.StatusOK, do(t, h, "/api/v1/submissions/7").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/api/v1/submissions/8").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/api/v1/submissions/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/api/v1/submissions/-3").Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	testServer(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
