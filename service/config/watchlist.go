package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brojonat/roundtrip/service/arb"
)

// Watchlist is the YAML file listing the mothers to trade and any tokens
// missing from the built-in registry.
type Watchlist struct {
	DefaultTarget string           `yaml:"default_target"`
	Entries       []arb.WatchEntry `yaml:"watch"`
	Tokens        []arb.TokenMeta  `yaml:"tokens"`
}

// LoadWatchlist reads and validates the watchlist at path.
func LoadWatchlist(path string) (*Watchlist, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchlist: %w", err)
	}
	defer file.Close()

	var wl Watchlist
	if err := yaml.NewDecoder(file).Decode(&wl); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}
	if err := wl.Validate(); err != nil {
		return nil, err
	}
	return &wl, nil
}

// Validate checks every entry.
func (w *Watchlist) Validate() error {
	var errs []error
	if len(w.Entries) == 0 {
		errs = append(errs, fmt.Errorf("watchlist has no entries"))
	}

	seen := make(map[string]bool, len(w.Entries))
	for i, e := range w.Entries {
		switch {
		case e.Mint == "":
			errs = append(errs, fmt.Errorf("entry %d: mint is required", i))
		case seen[e.Mint]:
			errs = append(errs, fmt.Errorf("entry %d: duplicate mint %s", i, e.Mint))
		}
		seen[e.Mint] = true

		if e.From <= 0 || e.To < e.From {
			errs = append(errs, fmt.Errorf("entry %d: amount range [%v, %v] is invalid", i, e.From, e.To))
		}
		if e.Steps < 1 {
			errs = append(errs, fmt.Errorf("entry %d: steps must be at least 1", i))
		}
		if e.MinProfit < 0 {
			errs = append(errs, fmt.Errorf("entry %d: min_profit cannot be negative", i))
		}
	}

	for i, t := range w.Tokens {
		if t.Mint == "" || t.Symbol == "" {
			errs = append(errs, fmt.Errorf("token %d: mint and symbol are required", i))
		}
	}
	if _, err := arb.DefaultRegistry().WithTokens(w.Tokens); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: watchlist: %v", ErrInvalidConfig, errs)
	}
	return nil
}

// FeeModel builds the cost model from the fee settings. A profit share of
// zero selects the fixed tip.
func (c *Config) FeeModel() arb.FeeModel {
	mode := arb.RelayFeeFixed
	if c.RelayFeeProfitShare != 0 {
		mode = arb.RelayFeeProfitShare
	}
	return arb.FeeModel{
		ComputeUnits:             c.ComputeUnitLimit,
		PriorityFeeMicroLamports: c.PriorityFeeMicroLamports,
		Mode:                     mode,
		FixedSOL:                 c.RelayTipSOL,
		Share:                    c.RelayFeeProfitShare,
		ReferencePrice:           c.SOLPriceUSD,
	}
}
