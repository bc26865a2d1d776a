// Package pricefeed keeps a process-wide SOL/USD price snapshot fresh.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/metrics"
)

// Feed holds the latest SOL price. Readers never block.
type Feed struct {
	baseURL  string
	apiKey   string
	fallback float64
	http     *http.Client
	bits     atomic.Uint64
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a feed that reports fallback until the first successful refresh.
func New(baseURL, apiKey string, fallback float64, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Feed{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		fallback: fallback,
		http:     httpClient,
		metrics:  m,
		logger:   logger.With("component", "pricefeed"),
	}
}

// Price returns the cached price, or the fallback if none is cached yet.
func (f *Feed) Price() float64 {
	if v := f.bits.Load(); v != 0 {
		return math.Float64frombits(v)
	}
	return f.fallback
}

// Set overrides the cached price.
func (f *Feed) Set(price float64) {
	f.bits.Store(math.Float64bits(price))
}

type priceEntry struct {
	USDPrice float64 `json:"usdPrice"`
}

// Refresh fetches the current price once.
func (f *Feed) Refresh(ctx context.Context) error {
	price, err := f.fetch(ctx)
	f.metrics.RecordPriceRefresh(price, err)
	if err != nil {
		return err
	}
	f.Set(price)
	return nil
}

func (f *Feed) fetch(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("ids", arb.NativeMint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	if f.apiKey != "" {
		req.Header.Set("x-api-key", f.apiKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("price api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var prices map[string]priceEntry
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return 0, fmt.Errorf("failed to decode price: %w", err)
	}
	entry, ok := prices[arb.NativeMint]
	if !ok || entry.USDPrice <= 0 {
		return 0, fmt.Errorf("price api returned no price for %s", arb.NativeMint)
	}
	return entry.USDPrice, nil
}

// Run refreshes on every interval until ctx is done. Failures keep the
// previous snapshot.
func (f *Feed) Run(ctx context.Context, interval time.Duration) {
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("price refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Warn("price refresh failed", "error", err, "price", f.Price())
			}
		}
	}
}
