package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check that the engine is up and its ledger answers",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "details",
				Usage: "Also print trading mode, nonce age and in-flight runs",
			},
		},
		Action: func(c *cli.Context) error {
			base := c.String("server-url")
			if base == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			hc := &http.Client{Timeout: c.Duration("timeout")}
			resp, err := hc.Get(base + "/healthz")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				if reason := errorReason(resp.Body); reason != "" {
					return fmt.Errorf("unhealthy status: %d (%s)", resp.StatusCode, reason)
				}
				return fmt.Errorf("unhealthy status: %d", resp.StatusCode)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "✓ Engine is healthy at %s\n", base)
			if !c.Bool("details") {
				return nil
			}

			st, err := newAPIClient(c).Status(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch status: %w", err)
			}
			mode := "simulation"
			if st.Live {
				mode = "live"
			}
			fmt.Fprintf(w, "  Mode:      %s, up %s\n", mode, st.Uptime)
			if st.NonceBlockhash != "" {
				fmt.Fprintf(w, "  Nonce age: %s\n", st.NonceAge)
			}
			fmt.Fprintf(w, "  In flight: %d\n", st.InFlight)
			return nil
		},
	}
}

// errorReason extracts the message from a writeError body, if any.
func errorReason(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return payload.Error
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "roundtrip %s (commit %s, built %s, %s)\n", version, commit, date, runtime.Version())
			return nil
		},
	}
}
