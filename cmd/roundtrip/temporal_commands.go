package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/temporal"
)

// dialScheduler connects to Temporal. Tests replace it with a mock.
var dialScheduler = func(c *cli.Context) (temporal.Scheduler, func(), error) {
	tc, err := dialTemporal(c)
	if err != nil {
		return nil, nil, err
	}
	return tc, tc.Close, nil
}

func dialTemporal(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("task-queue"),
		cliLogger(),
	)
}

func taskQueueFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "task-queue",
		Usage:   "Task queue name",
		Value:   "roundtrip-watchlist",
		EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
	}
}

func createScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-schedule",
		Usage:     "Create or update the watchlist polling schedule",
		ArgsUsage: "<poll-interval> [mother ...]",
		Description: `Schedules PollWatchlistWorkflow every poll-interval. Overlapping runs are
skipped and the first run starts immediately. With no mothers the engine's
whole watchlist is polled.

Example:
  roundtrip temporal create-schedule 5s SOL JUP`,
		Flags: []cli.Flag{taskQueueFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("poll-interval is required")
			}
			interval, err := time.ParseDuration(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid poll-interval: %w", err)
			}
			if interval < 100*time.Millisecond {
				return fmt.Errorf("poll-interval must be at least 100ms")
			}

			reg := arb.DefaultRegistry()
			var mints []string
			for _, arg := range c.Args().Tail() {
				mints = append(mints, reg.Resolve(arg).Mint)
			}

			sched, closeFn, err := dialScheduler(c)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := sched.UpsertPollSchedule(ctx, interval, temporal.PollWatchlistInput{Mints: mints}); err != nil {
				return err
			}

			w := c.App.Writer
			fmt.Fprintf(w, "✓ Schedule ready: %s\n", temporal.ScheduleID)
			fmt.Fprintf(w, "  Interval: %v\n", interval)
			if len(mints) == 0 {
				fmt.Fprintf(w, "  Mothers:  entire watchlist\n")
			} else {
				fmt.Fprintf(w, "  Mothers:  %s\n", reg.SymbolList(mints))
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the watchlist polling schedule",
		Flags: []cli.Flag{
			taskQueueFlag(),
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Fprintf(c.App.Writer, "Are you sure you want to delete schedule %s? (yes/no): ", temporal.ScheduleID)
				var response string
				fmt.Fscanln(c.App.Reader, &response)
				if response != "yes" {
					fmt.Fprintln(c.App.Writer, "Cancelled")
					return nil
				}
			}

			sched, closeFn, err := dialScheduler(c)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := sched.DeletePollSchedule(ctx); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule deleted: %s\n", temporal.ScheduleID)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Usage:   "Describe the watchlist polling schedule",
		Aliases: []string{"desc"},
		Flags:   []cli.Flag{taskQueueFlag()},
		Action: func(c *cli.Context) error {
			tc, err := dialTemporal(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			handle := tc.SDKClient().ScheduleClient().GetHandle(ctx, temporal.ScheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Schedule ID:    %s\n", temporal.ScheduleID)
			fmt.Fprintf(w, "Paused:         %v\n", desc.Schedule.State.Paused)
			if action, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Fprintf(w, "Workflow:       %v\n", action.Workflow)
				fmt.Fprintf(w, "Task Queue:     %s\n", action.TaskQueue)
			}
			for i, interval := range desc.Schedule.Spec.Intervals {
				fmt.Fprintf(w, "Interval %d:     every %v\n", i+1, interval.Every)
			}

			fmt.Fprintf(w, "Recent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Fprintf(w, "Last Action:    %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}
