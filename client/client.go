package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Status is the engine snapshot returned by /api/v1/status.
type Status struct {
	StartedAt      time.Time        `json:"started_at"`
	Uptime         string           `json:"uptime"`
	Live           bool             `json:"live"`
	WatchFlows     bool             `json:"watch_flows"`
	PollQuotes     bool             `json:"poll_quotes"`
	PollDriver     string           `json:"poll_driver"`
	SOLPriceUSD    float64          `json:"sol_price_usd"`
	NonceBlockhash string           `json:"nonce_blockhash,omitempty"`
	NonceAge       string           `json:"nonce_age,omitempty"`
	InFlight       int64            `json:"in_flight"`
	Channels       []string         `json:"channels"`
	Watchlist      []WatchlistEntry `json:"watchlist"`
	Counts         map[string]int64 `json:"submission_counts,omitempty"`
}

// WatchlistEntry is one watched mother token.
type WatchlistEntry struct {
	Mint              string  `json:"mint"`
	Symbol            string  `json:"symbol"`
	From              float64 `json:"from"`
	To                float64 `json:"to"`
	Steps             int     `json:"steps"`
	MinProfit         float64 `json:"min_profit"`
	BigTradeThreshold float64 `json:"big_trade_threshold"`
}

// ChannelAttempt is one channel's outcome for a submission.
type ChannelAttempt struct {
	Channel   string `json:"channel"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// Submission is one row of the engine's submission ledger.
type Submission struct {
	ID               int64            `json:"id"`
	Source           string           `json:"source"`
	TriggerTx        *string          `json:"trigger_tx,omitempty"`
	MotherMint       string           `json:"mother_mint"`
	MotherSymbol     string           `json:"mother_symbol"`
	TargetMint       string           `json:"target_mint"`
	InAmount         int64            `json:"in_amount"`
	OutAmount        int64            `json:"out_amount"`
	GrossProfit      int64            `json:"gross_profit"`
	NetProfit        int64            `json:"net_profit"`
	TxCost           int64            `json:"tx_cost"`
	RelayFeeSOL      float64          `json:"relay_fee_sol"`
	Status           string           `json:"status"`
	PreviewSignature *string          `json:"preview_signature,omitempty"`
	LandedChannel    *string          `json:"landed_channel,omitempty"`
	Error            *string          `json:"error,omitempty"`
	Channels         []ChannelAttempt `json:"channels"`
	CreatedAt        time.Time        `json:"created_at"`
}

// ListSubmissionsParams filters the submission listing. Zero values are omitted.
type ListSubmissionsParams struct {
	MotherMint string
	Status     string
	Limit      int
	Offset     int
}

// Client is the HTTP client for the roundtrip engine's status server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new engine client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Status fetches the engine status snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.get(ctx, "/api/v1/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListSubmissions lists ledger rows newest first.
func (c *Client) ListSubmissions(ctx context.Context, params ListSubmissionsParams) ([]*Submission, error) {
	q := url.Values{}
	if params.MotherMint != "" {
		q.Set("mother", params.MotherMint)
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	path := "/api/v1/submissions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Submissions []*Submission `json:"submissions"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("submissions listed", "count", len(resp.Submissions))
	return resp.Submissions, nil
}

// GetSubmission fetches one ledger row by id.
func (c *Client) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	var sub Submission
	if err := c.get(ctx, "/api/v1/submissions/"+strconv.FormatInt(id, 10), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
