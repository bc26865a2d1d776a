package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/time/rate"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/metrics"
)

// ErrNoRoute is returned when the aggregator has no route for a pair.
var ErrNoRoute = errors.New("no route")

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	// User is the wallet that signs the swap. Required for BuildSwap.
	User solana.PublicKey
	// MaxAccounts per leg for regular and size-aware quotes.
	MaxAccounts          int
	SizeAwareMaxAccounts int
	HTTPClient           *http.Client
	// Limiter throttles every request when set.
	Limiter *rate.Limiter
}

// Client talks to the Jupiter swap API.
type Client struct {
	cfg     Config
	http    *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewClient creates a Jupiter client.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.MaxAccounts == 0 {
		cfg.MaxAccounts = 24
	}
	if cfg.SizeAwareMaxAccounts == 0 {
		cfg.SizeAwareMaxAccounts = 16
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    cfg.HTTPClient,
		metrics: m,
		logger:  logger.With("component", "jupiter"),
	}
}

// Quote fetches one ExactIn leg. The raw quote is kept in Leg.Route.
func (c *Client) Quote(ctx context.Context, mode arb.QuoteMode, inputMint, outputMint string, amount uint64) (arb.Leg, error) {
	start := time.Now()
	leg, err := c.quote(ctx, mode, inputMint, outputMint, amount)
	c.metrics.RecordQuote(mode.String(), err, time.Since(start).Seconds())
	return leg, err
}

func (c *Client) quote(ctx context.Context, mode arb.QuoteMode, inputMint, outputMint string, amount uint64) (arb.Leg, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", "0")
	q.Set("swapMode", "ExactIn")
	q.Set("restrictIntermediateTokens", "true")
	switch mode {
	case arb.QuoteSizeAware:
		q.Set("onlyDirectRoutes", "true")
		q.Set("maxAccounts", strconv.Itoa(c.cfg.SizeAwareMaxAccounts))
	default:
		q.Set("onlyDirectRoutes", "false")
		q.Set("maxAccounts", strconv.Itoa(c.cfg.MaxAccounts))
	}

	body, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return arb.Leg{}, fmt.Errorf("failed to fetch quote: %w", err)
	}

	var qr QuoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return arb.Leg{}, fmt.Errorf("failed to decode quote: %w", err)
	}
	in, err := strconv.ParseUint(qr.InAmount, 10, 64)
	if err != nil {
		return arb.Leg{}, fmt.Errorf("invalid inAmount %q: %w", qr.InAmount, err)
	}
	out, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return arb.Leg{}, fmt.Errorf("invalid outAmount %q: %w", qr.OutAmount, err)
	}

	return arb.Leg{
		InputMint:  qr.InputMint,
		OutputMint: qr.OutputMint,
		InAmount:   in,
		OutAmount:  out,
		Route:      body,
	}, nil
}

// MergeRoundTrip joins two legs into a single mother -> mother quote whose
// output must clear in + minOutRaw.
func MergeRoundTrip(leg1, leg2 arb.Leg, minOutRaw uint64) (QuoteResponse, error) {
	var q1, q2 QuoteResponse
	if err := json.Unmarshal(leg1.Route, &q1); err != nil {
		return QuoteResponse{}, fmt.Errorf("failed to decode first leg: %w", err)
	}
	if err := json.Unmarshal(leg2.Route, &q2); err != nil {
		return QuoteResponse{}, fmt.Errorf("failed to decode second leg: %w", err)
	}
	if q1.OutputMint != q2.InputMint || q1.InputMint != q2.OutputMint {
		return QuoteResponse{}, fmt.Errorf("legs do not form a round trip: %s->%s then %s->%s",
			q1.InputMint, q1.OutputMint, q2.InputMint, q2.OutputMint)
	}

	route := make([]RoutePlanStep, 0, len(q1.RoutePlan)+len(q2.RoutePlan))
	route = append(route, q1.RoutePlan...)
	route = append(route, q2.RoutePlan...)

	return QuoteResponse{
		InputMint:            q1.InputMint,
		InAmount:             q1.InAmount,
		OutputMint:           q2.OutputMint,
		OutAmount:            q2.OutAmount,
		OtherAmountThreshold: strconv.FormatUint(leg1.InAmount+minOutRaw, 10),
		SwapMode:             "ExactIn",
		SlippageBps:          0,
		PriceImpactPct:       "0",
		RoutePlan:            route,
		ContextSlot:          max(q1.ContextSlot, q2.ContextSlot),
	}, nil
}

// BuildSwap asks the aggregator for the instructions of the merged round trip.
func (c *Client) BuildSwap(ctx context.Context, leg1, leg2 arb.Leg, minOutRaw uint64) (*SwapInstructions, error) {
	if c.cfg.User.IsZero() {
		return nil, fmt.Errorf("swap user is not configured")
	}
	merged, err := MergeRoundTrip(leg1, leg2, minOutRaw)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(swapInstructionsRequest{
		UserPublicKey:            c.cfg.User.String(),
		QuoteResponse:            merged,
		WrapAndUnwrapSol:         false,
		UseSharedAccounts:        false,
		DynamicComputeUnitLimit:  false,
		SkipUserAccountsRPCCalls: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/swap-instructions", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swap instructions: %w", err)
	}

	var resp swapInstructionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode swap instructions: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("swap instructions: %s", resp.Error)
	}
	if resp.SwapInstruction == nil {
		return nil, fmt.Errorf("swap instructions: %w", ErrNoRoute)
	}

	out := &SwapInstructions{}
	for i, raw := range resp.SetupInstructions {
		ix, err := raw.decode()
		if err != nil {
			return nil, fmt.Errorf("setup instruction %d: %w", i, err)
		}
		out.Setup = append(out.Setup, ix)
	}
	if out.Swap, err = resp.SwapInstruction.decode(); err != nil {
		return nil, fmt.Errorf("swap instruction: %w", err)
	}
	for _, addr := range resp.AddressLookupTableAddresses {
		key, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid lookup table %q: %w", addr, err)
		}
		out.LookupTables = append(out.LookupTables, key)
	}
	return out, nil
}

// Timing is the result of Probe.
type Timing struct {
	Quote time.Duration
	Build time.Duration
}

// Probe measures one quote and one swap-instructions build for a round trip
// of amount through target.
func (c *Client) Probe(ctx context.Context, mother, target string, amount uint64) (Timing, error) {
	var t Timing
	start := time.Now()
	leg1, err := c.Quote(ctx, arb.QuoteRegular, mother, target, amount)
	if err != nil {
		return t, err
	}
	t.Quote = time.Since(start)

	leg2, err := c.Quote(ctx, arb.QuoteRegular, target, mother, leg1.OutAmount)
	if err != nil {
		return t, err
	}

	start = time.Now()
	if _, err := c.BuildSwap(ctx, leg1, leg2, 0); err != nil {
		return t, err
	}
	t.Build = time.Since(start)
	return t, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		if isNoRoute(body) {
			return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ErrNoRoute)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func isNoRoute(body []byte) bool {
	s := string(body)
	return strings.Contains(s, "COULD_NOT_FIND_ANY_ROUTE") ||
		strings.Contains(s, "NO_ROUTES_FOUND") ||
		strings.Contains(s, "TOKEN_NOT_TRADABLE")
}

func (ix instruction) decode() (solana.Instruction, error) {
	program, err := solana.PublicKeyFromBase58(ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id %q: %w", ix.ProgramID, err)
	}
	data, err := base64.StdEncoding.DecodeString(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}
	accounts := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
	for _, a := range ix.Accounts {
		key, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid account %q: %w", a.Pubkey, err)
		}
		accounts = append(accounts, solana.NewAccountMeta(key, a.IsWritable, a.IsSigner))
	}
	return solana.NewInstruction(program, accounts, data), nil
}
