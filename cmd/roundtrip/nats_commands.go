package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	"github.com/brojonat/roundtrip/service/arb"
	natspkg "github.com/brojonat/roundtrip/service/nats"
)

// subscribeCommand streams opportunity and submission events.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Stream opportunity and submission events",
		ArgsUsage: "[mother]",
		Description: `Subscribe to events the engine publishes to NATS JetStream.

Events are published to arb.opportunities.{mother_mint} and
arb.submissions.{mother_mint}. Every --must-jq filter is evaluated against
the event JSON and all of them must be truthy for the event to print.

Examples:
  roundtrip nats subscribe
  roundtrip nats subscribe SOL --kind submissions --json
  roundtrip nats subscribe --must-jq '.net_profit > 100000' --must-jq '.target == "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Event kind: all, opportunities or submissions",
				Value: "all",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "roundtrip-cli",
			},
		},
		Action: func(c *cli.Context) error {
			mother := ""
			if c.NArg() > 0 {
				mother = arb.DefaultRegistry().Resolve(c.Args().First()).Mint
			}
			subjects, err := subjectsFor(c.String("kind"), mother)
			if err != nil {
				return err
			}
			filters, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			consumerConfig := jetstream.ConsumerConfig{
				FilterSubjects: subjects,
				AckPolicy:      jetstream.AckExplicitPolicy,
			}
			if c.Bool("durable") {
				consumerConfig.Durable = c.String("consumer-name")
				consumerConfig.Name = c.String("consumer-name")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return streamEvents(ctx, c.App.Writer, c.String("nats-url"), consumerConfig, filters, c.Bool("json"))
		},
	}
}

// subjectsFor maps an event kind and optional mother mint to consumer filter subjects.
func subjectsFor(kind, mother string) ([]string, error) {
	opp, sub := natspkg.OpportunitySubjects, natspkg.SubmissionSubjects
	if mother != "" {
		opp, sub = natspkg.OpportunitySubject(mother), natspkg.SubmissionSubject(mother)
	}
	switch kind {
	case "", "all":
		return []string{opp, sub}, nil
	case "opportunities", "opportunity":
		return []string{opp}, nil
	case "submissions", "submission":
		return []string{sub}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q: use all, opportunities or submissions", kind)
	}
}

// compileFilters parses and compiles jq expressions.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, filter := range exprs {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// matchesAll reports whether every filter's first result is truthy for v.
func matchesAll(codes []*gojq.Code, v any) bool {
	for _, code := range codes {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// streamEvents connects to NATS and prints matching events until ctx is done.
func streamEvents(ctx context.Context, w io.Writer, natsURL string, consumerConfig jetstream.ConsumerConfig, filters []*gojq.Code, jsonOutput bool) error {
	nc, err := natspkg.Connect(natsURL, "roundtrip-cli")
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n", strings.Join(consumerConfig.FilterSubjects, ", "))
		fmt.Fprintf(os.Stderr, "   NATS: %s\n\nWaiting for events... (Ctrl-C to exit)\n\n", natsURL)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event map[string]any
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			if !matchesAll(filters, event) {
				continue
			}
			count++

			if jsonOutput {
				fmt.Fprintln(w, string(msg.Data()))
				continue
			}
			printEvent(w, msg.Subject(), event, count)

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\n✅ Received %d events\n", count)
			}
			return nil
		}
	}
}

func printEvent(w io.Writer, subject string, event map[string]any, n int) {
	kind := "Opportunity"
	if strings.HasPrefix(subject, "arb.submissions.") {
		kind = "Submission"
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "%s #%d\n", kind, n)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	for _, key := range []string{
		"source", "tx_id", "mother_symbol", "target", "mode",
		"in_amount", "out_amount", "net_profit", "relay_fee_sol",
		"status", "landed_channel", "landed_signature", "error", "published_at",
	} {
		if v, ok := event[key]; ok && v != "" {
			fmt.Fprintf(w, "%-17s %v\n", key+":", v)
		}
	}
	fmt.Fprintln(w)
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the ARBITRAGE JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "roundtrip-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeIndented(w, info)
			}
			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			return nil
		},
	}
}
