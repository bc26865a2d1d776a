package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/jupiter"
)

func sampleCommand() *cli.Command {
	return &cli.Command{
		Name:  "sample",
		Usage: "Print the geometric amount grid for a mother token",
		Description: `Shows the raw input amounts a poll or big-trade run would quote.

Example:
  roundtrip sample --mint SOL --from 0.1 --to 10 --steps 5`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Mother mint or registered symbol",
				Value: "SOL",
			},
		}, gridFlags()...),
		Action: func(c *cli.Context) error {
			mother := arb.DefaultRegistry().Resolve(c.String("mint"))
			grid, err := arb.SampleAmounts(c.Float64("from"), c.Float64("to"), c.Int("steps"), mother.Decimals)
			if err != nil {
				return err
			}

			w := c.App.Writer
			if c.Bool("json") {
				return json.NewEncoder(w).Encode(grid)
			}
			fmt.Fprintf(w, "%s (%d decimals)\n", mother.Symbol, mother.Decimals)
			for i, raw := range grid {
				fmt.Fprintf(w, "  %2d  %20d  %s\n", i, raw, formatAmount(int64(raw), mother.Decimals))
			}
			return nil
		},
	}
}

func costCommand() *cli.Command {
	return &cli.Command{
		Name:  "cost",
		Usage: "Price a trade with the configured fee model",
		Description: `Computes total cost, relay fee and net profit for a gross profit given in
the mother token's human units. Fee flags read the same environment
variables as the engine.

Example:
  roundtrip cost --mint USDC --gross 1.5 --sol-price 140`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "mint",
				Usage: "Mother mint or registered symbol",
				Value: "SOL",
			},
			&cli.Float64Flag{
				Name:     "gross",
				Usage:    "Gross profit in human units of the mother token",
				Required: true,
			},
		}, feeFlags()...),
		Action: func(c *cli.Context) error {
			mother := arb.DefaultRegistry().Resolve(c.String("mint"))
			fee := feeModel(c)

			grossRaw := arb.ToRaw(c.Float64("gross"), mother.Decimals)
			costRaw, relaySOL := fee.ComputeForTrade(grossRaw, mother.IsNative(), mother.Decimals, fee.ReferencePrice)
			net := grossRaw - costRaw

			w := c.App.Writer
			if c.Bool("json") {
				return json.NewEncoder(w).Encode(map[string]any{
					"mint":          mother.Mint,
					"gross_profit":  grossRaw,
					"total_cost":    costRaw,
					"net_profit":    net,
					"relay_fee_sol": relaySOL,
				})
			}
			fmt.Fprintf(w, "Gross:      %s %s\n", formatAmount(grossRaw, mother.Decimals), mother.Symbol)
			fmt.Fprintf(w, "Total cost: %s %s\n", formatAmount(costRaw, mother.Decimals), mother.Symbol)
			fmt.Fprintf(w, "Relay fee:  %.9f SOL\n", relaySOL)
			fmt.Fprintf(w, "Net:        %s %s\n", formatAmount(net, mother.Decimals), mother.Symbol)
			return nil
		},
	}
}

func quoteCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Intermediate mint or symbol (repeatable)",
			Value:   cli.NewStringSlice("USDC"),
		},
		&cli.BoolFlag{
			Name:  "size-aware",
			Usage: "Quote direct routes only, as after a big trade",
		},
		&cli.Float64Flag{
			Name:  "min-profit",
			Usage: "Minimum net profit in human units",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Maximum concurrent round trips (0 is unbounded)",
		},
	}
	flags = append(flags, gridFlags()...)
	flags = append(flags, jupiterFlags()...)
	flags = append(flags, feeFlags()...)

	return &cli.Command{
		Name:      "quote",
		Usage:     "Run one quote and evaluation pass without submitting",
		ArgsUsage: "[flags] MOTHER",
		Description: `Quotes every (amount, target) round trip for the mother token, prints one
evaluation line per result and reports the best opportunity.

Example:
  roundtrip quote --target USDC --target USDT --from 1 --to 50 --steps 6 SOL`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			if err := motherArg(c); err != nil {
				return err
			}

			reg := arb.DefaultRegistry()
			mother := reg.Resolve(c.Args().First())
			var targets []string
			for _, t := range c.StringSlice("target") {
				target := reg.Resolve(t).Mint
				if target == mother.Mint {
					return fmt.Errorf("target %s is the mother token", t)
				}
				targets = append(targets, target)
			}

			grid, err := arb.SampleAmounts(c.Float64("from"), c.Float64("to"), c.Int("steps"), mother.Decimals)
			if err != nil {
				return err
			}

			mode := arb.QuoteRegular
			if c.Bool("size-aware") {
				mode = arb.QuoteSizeAware
			}

			logger := cliLogger()
			jup, err := newJupiterClient(c, logger)
			if err != nil {
				return err
			}

			w := c.App.Writer
			var audit arb.AuditSink = writerAudit{w: w}
			if c.Bool("json") {
				audit = arb.NopAudit{}
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			fanout := arb.NewFanout(jup, c.Int("concurrency"), arb.NopAudit{}, nil, logger)
			batch := fanout.Run(ctx, arb.FanoutRequest{
				Mother:  mother,
				Targets: targets,
				Grid:    grid,
				Mode:    mode,
			})

			fee := feeModel(c)
			sel := arb.NewEvaluator(reg, audit, nil).Evaluate(batch.Results, arb.EvalParams{
				Fee:       fee,
				Mother:    mother,
				Price:     fee.ReferencePrice,
				MinProfit: c.Float64("min-profit"),
			})

			if c.Bool("json") {
				return json.NewEncoder(w).Encode(map[string]any{
					"quotes":  batch.Total,
					"failed":  batch.Failed,
					"elapsed": batch.Elapsed.String(),
					"kept":    sel.Kept,
					"best":    sel.Best,
				})
			}

			fmt.Fprintf(w, "\n%d/%d round trips quoted in %s (%d failed)\n",
				len(batch.Results), batch.Total, batch.Elapsed.Round(time.Millisecond), batch.Failed)
			if sel.Best == nil {
				fmt.Fprintln(w, "No opportunity above the minimum profit")
				return nil
			}
			best := sel.Best
			fmt.Fprintf(w, "Best: %s -> %s, in %s, net %s %s\n",
				mother.Symbol,
				reg.Symbol(best.Result.Target),
				formatAmount(int64(best.Result.InAmount), mother.Decimals),
				formatAmount(best.NetProfit, mother.Decimals),
				mother.Symbol,
			)
			return nil
		},
	}
}

func probeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Intermediate mint or symbol",
			Value:   "USDC",
		},
		&cli.Float64Flag{
			Name:  "amount",
			Usage: "Input amount in human units",
			Value: 1,
		},
		&cli.StringFlag{
			Name:    "user",
			Usage:   "Wallet that would sign the swap",
			EnvVars: []string{"PROBE_USER"},
		},
		&cli.StringFlag{
			Name:    "keypair",
			Usage:   "Keypair file; its public key is used when --user is unset",
			EnvVars: []string{"KEYPAIR_PATH"},
		},
	}
	flags = append(flags, jupiterFlags()...)

	return &cli.Command{
		Name:      "probe",
		Usage:     "Time one quote and one swap-instructions build",
		ArgsUsage: "[flags] MOTHER",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			if err := motherArg(c); err != nil {
				return err
			}

			reg := arb.DefaultRegistry()
			mother := reg.Resolve(c.Args().First())
			target := reg.Resolve(c.String("target"))
			amount := arb.ToRaw(c.Float64("amount"), mother.Decimals)
			if amount <= 0 {
				return fmt.Errorf("amount must be positive")
			}

			user, err := probeUser(c.String("user"), c.String("keypair"))
			if err != nil {
				return err
			}

			logger := cliLogger()
			jup, err := newJupiterClient(c, logger, func(cfg *jupiter.Config) { cfg.User = user })
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			timing, err := jup.Probe(ctx, mother.Mint, target.Mint, uint64(amount))
			if err != nil {
				return fmt.Errorf("probe failed: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return json.NewEncoder(w).Encode(map[string]any{
					"quote_ms": timing.Quote.Milliseconds(),
					"build_ms": timing.Build.Milliseconds(),
				})
			}
			fmt.Fprintf(w, "Quote: %s\n", timing.Quote.Round(time.Millisecond))
			fmt.Fprintf(w, "Build: %s\n", timing.Build.Round(time.Millisecond))
			return nil
		},
	}
}

func probeUser(user, keypair string) (solanago.PublicKey, error) {
	if user != "" {
		key, err := solanago.PublicKeyFromBase58(user)
		if err != nil {
			return solanago.PublicKey{}, fmt.Errorf("invalid --user: %w", err)
		}
		return key, nil
	}
	if keypair == "" {
		return solanago.PublicKey{}, fmt.Errorf("--user or --keypair is required to build swap instructions")
	}
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(keypair)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("failed to load keypair: %w", err)
	}
	return key.PublicKey(), nil
}

func gridFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: "from", Usage: "Smallest amount in human units", Value: 1},
		&cli.Float64Flag{Name: "to", Usage: "Largest amount in human units", Value: 10},
		&cli.IntFlag{Name: "steps", Usage: "Number of amounts", Value: 5},
	}
}

func jupiterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "jupiter-url",
			Usage:   "Jupiter swap API base URL",
			EnvVars: []string{"JUPITER_API_URL"},
			Value:   "https://lite-api.jup.ag/swap/v1",
		},
		&cli.StringFlag{
			Name:    "jupiter-key",
			Usage:   "Jupiter API key",
			EnvVars: []string{"JUPITER_API_KEY"},
		},
		&cli.Float64Flag{
			Name:    "rate-limit",
			Usage:   "Requests per second (0 is unlimited)",
			EnvVars: []string{"QUOTE_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall deadline",
			Value: 30 * time.Second,
		},
	}
}

func feeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.UintFlag{
			Name:    "compute-units",
			EnvVars: []string{"COMPUTE_UNIT_LIMIT"},
			Value:   400_000,
		},
		&cli.Uint64Flag{
			Name:    "priority-fee",
			Usage:   "Priority fee in micro-lamports per compute unit",
			EnvVars: []string{"PRIORITY_FEE_MICRO_LAMPORTS"},
			Value:   1_000,
		},
		&cli.Float64Flag{
			Name:    "relay-tip",
			Usage:   "Fixed relay tip in SOL",
			EnvVars: []string{"RELAY_TIP_SOL"},
			Value:   0.001,
		},
		&cli.Float64Flag{
			Name:    "profit-share",
			Usage:   "Relay tip as a share of gross profit; 0 selects the fixed tip",
			EnvVars: []string{"RELAY_FEE_PROFIT_SHARE"},
		},
		&cli.Float64Flag{
			Name:    "sol-price",
			Usage:   "SOL price in USD for non-native mothers",
			EnvVars: []string{"SOL_PRICE_USD"},
			Value:   150,
		},
	}
}

func feeModel(c *cli.Context) arb.FeeModel {
	mode := arb.RelayFeeFixed
	if c.Float64("profit-share") != 0 {
		mode = arb.RelayFeeProfitShare
	}
	return arb.FeeModel{
		ComputeUnits:             uint32(c.Uint("compute-units")),
		PriorityFeeMicroLamports: c.Uint64("priority-fee"),
		Mode:                     mode,
		FixedSOL:                 c.Float64("relay-tip"),
		Share:                    c.Float64("profit-share"),
		ReferencePrice:           c.Float64("sol-price"),
	}
}

func newJupiterClient(c *cli.Context, logger *slog.Logger, opts ...func(*jupiter.Config)) (*jupiter.Client, error) {
	cfg := jupiter.Config{
		BaseURL: c.String("jupiter-url"),
		APIKey:  c.String("jupiter-key"),
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("jupiter-url is required")
	}
	if limit := c.Float64("rate-limit"); limit > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(limit), max(1, int(limit)))
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return jupiter.NewClient(cfg, nil, logger), nil
}

// writerAudit prints evaluation lines instead of appending them to a file.
type writerAudit struct {
	w io.Writer
}

func (a writerAudit) Write(line string) {
	fmt.Fprintln(a.w, line)
}

func formatAmount(raw int64, decimals uint8) string {
	return fmt.Sprintf("%.*f", int(decimals), arb.FromRaw(raw, decimals))
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

// motherArg checks for the single MOTHER argument. Flags are only parsed
// before it, so anything after MOTHER is reported rather than ignored.
func motherArg(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("mother mint or symbol is required")
	}
	if c.NArg() > 1 {
		return fmt.Errorf("unexpected arguments after %s: %v (flags go before MOTHER)", c.Args().First(), c.Args().Tail())
	}
	return nil
}
