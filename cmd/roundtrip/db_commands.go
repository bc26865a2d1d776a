package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/roundtrip/service/db"
)

func dbCommands() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Submission ledger commands that talk to Postgres directly",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
		},
		Subcommands: []*cli.Command{
			migrateCommand(),
			countsCommand(),
			listSubmissionsDBCommand(),
		},
	}
}

// getStore connects to the ledger database. The returned func closes the pool.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, nil), pool.Close, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the submissions table and indexes if missing",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.EnsureSchema(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema is up to date")
			return nil
		},
	}
}

func countsCommand() *cli.Command {
	return &cli.Command{
		Name:  "counts",
		Usage: "Count submissions by status",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			counts, err := store.CountByStatus(context.Background())
			if err != nil {
				return err
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeIndented(w, counts)
			}
			statuses := make([]string, 0, len(counts))
			for s := range counts {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(w, "%-14s %d\n", s, counts[s])
			}
			return nil
		},
	}
}

func listSubmissionsDBCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-submissions",
		Usage:   "List submissions straight from the ledger",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mother", Usage: "Filter by mother mint"},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 50},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			subs, err := store.ListSubmissions(context.Background(), db.ListSubmissionsParams{
				MotherMint: c.String("mother"),
				Status:     c.String("status"),
				Limit:      int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list submissions: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeIndented(w, subs)
			}

			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSOURCE\tMOTHER\tNET\tSTATUS\tCHANNEL")
			for _, s := range subs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					s.ID,
					s.CreatedAt.Format(time.RFC3339),
					s.Source,
					s.MotherSymbol,
					s.NetProfit,
					s.Status,
					deref(s.LandedChannel),
				)
			}
			tw.Flush()
			fmt.Fprintf(w, "\nTotal: %d submissions\n", len(subs))
			return nil
		},
	}
}
