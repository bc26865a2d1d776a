package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/roundtrip/client"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the running engine's status",
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c)
			st, err := cl.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeIndented(w, st)
			}
			printStatus(w, st)
			return nil
		},
	}
}

func submissionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "submissions",
		Aliases: []string{"subs"},
		Usage:   "Inspect the submission ledger",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List recent submissions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mother", Usage: "Filter by mother mint"},
					&cli.StringFlag{Name: "status", Usage: "Filter by status (landed, failed, build_failed)"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}},
				},
				Action: func(c *cli.Context) error {
					limit := c.Int("limit")
					if limit < 1 || limit > 500 {
						return fmt.Errorf("limit must be between 1 and 500")
					}
					if c.Int("offset") < 0 {
						return fmt.Errorf("offset cannot be negative")
					}

					cl := newAPIClient(c)
					subs, err := cl.ListSubmissions(context.Background(), client.ListSubmissionsParams{
						MotherMint: c.String("mother"),
						Status:     c.String("status"),
						Limit:      limit,
						Offset:     c.Int("offset"),
					})
					if err != nil {
						return fmt.Errorf("failed to list submissions: %w", err)
					}

					w := c.App.Writer
					if c.Bool("json") {
						return writeIndented(w, subs)
					}

					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tMOTHER\tIN\tNET\tSTATUS\tCHANNEL")
					for _, s := range subs {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
							s.ID,
							s.CreatedAt.Format(time.RFC3339),
							s.Source,
							s.MotherSymbol,
							s.InAmount,
							s.NetProfit,
							s.Status,
							deref(s.LandedChannel),
						)
					}
					tw.Flush()
					fmt.Fprintf(w, "\nTotal: %d submissions\n", len(subs))
					return nil
				},
			},
			{
				Name:      "get",
				Usage:     "Show one submission with its per-channel outcomes",
				ArgsUsage: "ID",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: submission ID")
					}
					id, err := strconv.ParseInt(c.Args().First(), 10, 64)
					if err != nil {
						return fmt.Errorf("invalid submission ID: %w", err)
					}

					cl := newAPIClient(c)
					sub, err := cl.GetSubmission(context.Background(), id)
					if err != nil {
						return fmt.Errorf("failed to get submission: %w", err)
					}

					w := c.App.Writer
					if c.Bool("json") {
						return writeIndented(w, sub)
					}
					printSubmission(w, sub)
					return nil
				},
			},
		},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), &http.Client{Timeout: 10 * time.Second}, cliLogger())
}

func printStatus(w io.Writer, st *client.Status) {
	fmt.Fprintf(w, "Started:      %s (up %s)\n", st.StartedAt.Format(time.RFC3339), st.Uptime)
	fmt.Fprintf(w, "Live:         %v\n", st.Live)
	fmt.Fprintf(w, "Watch flows:  %v\n", st.WatchFlows)
	fmt.Fprintf(w, "Poll quotes:  %v (%s)\n", st.PollQuotes, st.PollDriver)
	fmt.Fprintf(w, "SOL price:    $%.2f\n", st.SOLPriceUSD)
	if st.NonceBlockhash != "" {
		fmt.Fprintf(w, "Nonce:        %s (age %s)\n", st.NonceBlockhash, st.NonceAge)
	}
	fmt.Fprintf(w, "In flight:    %d\n", st.InFlight)
	fmt.Fprintf(w, "Channels:     %v\n", st.Channels)

	if len(st.Watchlist) > 0 {
		fmt.Fprintln(w, "\nWatchlist:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  SYMBOL\tMINT\tRANGE\tSTEPS\tMIN PROFIT\tBIG TRADE")
		for _, e := range st.Watchlist {
			fmt.Fprintf(tw, "  %s\t%s\t%g-%g\t%d\t%g\t%g\n",
				e.Symbol, e.Mint, e.From, e.To, e.Steps, e.MinProfit, e.BigTradeThreshold)
		}
		tw.Flush()
	}

	if len(st.Counts) > 0 {
		fmt.Fprintln(w, "\nSubmissions:")
		statuses := make([]string, 0, len(st.Counts))
		for s := range st.Counts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(w, "  %-14s %d\n", s, st.Counts[s])
		}
	}
}

func printSubmission(w io.Writer, s *client.Submission) {
	fmt.Fprintf(w, "ID:           %d\n", s.ID)
	fmt.Fprintf(w, "Created:      %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Source:       %s\n", s.Source)
	if s.TriggerTx != nil {
		fmt.Fprintf(w, "Trigger tx:   %s\n", *s.TriggerTx)
	}
	fmt.Fprintf(w, "Mother:       %s (%s)\n", s.MotherSymbol, s.MotherMint)
	fmt.Fprintf(w, "Target:       %s\n", s.TargetMint)
	fmt.Fprintf(w, "In / Out:     %d / %d\n", s.InAmount, s.OutAmount)
	fmt.Fprintf(w, "Gross / Net:  %d / %d (cost %d)\n", s.GrossProfit, s.NetProfit, s.TxCost)
	fmt.Fprintf(w, "Relay fee:    %.9f SOL\n", s.RelayFeeSOL)
	fmt.Fprintf(w, "Status:       %s\n", s.Status)
	if s.PreviewSignature != nil {
		fmt.Fprintf(w, "Preview sig:  %s\n", *s.PreviewSignature)
	}
	if s.LandedChannel != nil {
		fmt.Fprintf(w, "Landed via:   %s\n", *s.LandedChannel)
	}
	if s.Error != nil {
		fmt.Fprintf(w, "Error:        %s\n", *s.Error)
	}

	if len(s.Channels) > 0 {
		fmt.Fprintln(w, "\nChannels:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, ch := range s.Channels {
			result := ch.Signature
			if ch.Error != "" {
				result = "error: " + ch.Error
			}
			fmt.Fprintf(tw, "  %s\t%d attempt(s)\t%s\n", ch.Channel, ch.Attempts, result)
		}
		tw.Flush()
	}
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
