package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/roundtrip/service/config"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	config.LoadDotEnv()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "roundtrip",
		Usage: "Solana round-trip arbitrage engine CLI",
		Description: `A command-line tool for exploring and operating the roundtrip engine.

Use this CLI to preview amount grids and costs, run one-off quote passes,
inspect the engine's status and submission ledger, tail the event stream
and manage the Temporal polling schedule.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Offline strategy tools
			sampleCommand(),
			costCommand(),
			// Aggregator commands
			quoteCommand(),
			probeCommand(),
			// Engine HTTP API
			statusCommand(),
			submissionsCommand(),
			dbCommands(),
			{
				Name:  "nats",
				Usage: "Event stream commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "temporal",
				Usage: "Temporal polling schedule commands",
				Subcommands: []*cli.Command{
					createScheduleCommand(),
					describeScheduleCommand(),
					deleteScheduleCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Engine status server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
