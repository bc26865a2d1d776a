package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/roundtrip/service/config"
	"github.com/brojonat/roundtrip/service/server"
	"github.com/brojonat/roundtrip/service/temporal"
)

func main() {
	config.LoadDotEnv()

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting engine",
		"live", cfg.LiveTrading,
		"watch_flows", cfg.WatchFlows,
		"poll_quotes", cfg.PollQuotes,
		"poll_driver", cfg.PollDriver,
		"log_level", cfg.LogLevel,
	)

	watchlist, err := config.LoadWatchlist(cfg.WatchlistFile)
	if err != nil {
		logger.Error("failed to load watchlist", "path", cfg.WatchlistFile, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, watchlist, logger)
	if err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	if err := run(ctx, eng); err != nil {
		logger.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("engine shutdown complete")
}

// run starts every long-lived component and blocks until ctx is cancelled or
// one of them fails.
func run(ctx context.Context, eng *engine) error {
	cfg, logger := eng.cfg, eng.logger
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eng.prices.Run(gctx, cfg.PriceRefreshInterval)
		return nil
	})
	if eng.nonces != nil {
		g.Go(func() error {
			eng.nonces.Run(gctx, cfg.NonceRefreshInterval)
			return nil
		})
	}

	if cfg.PollQuotes {
		switch cfg.PollDriver {
		case config.PollDriverTemporal:
			w, err := temporal.NewWorker(temporal.WorkerConfig{
				TemporalHost:      cfg.TemporalHost,
				TemporalNamespace: cfg.TemporalNamespace,
				TaskQueue:         cfg.TemporalTaskQueue,
				PollInterval:      cfg.PollInterval,
				Triggers:          eng.poller,
				Runner:            eng.pipeline,
				Metrics:           eng.metrics,
				Logger:            logger,
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return w.Run(gctx) })
		default:
			g.Go(func() error {
				eng.poller.Run(gctx)
				return nil
			})
		}
	}

	if cfg.WatchFlows {
		stream := eng.newStream()
		g.Go(func() error { return stream.Run(gctx, eng.bigTrade.Handle) })
	}

	srv := server.New(cfg.ServerAddr, eng, eng.ledger(), eng.metrics, logger)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	// Let in-flight pipeline runs finish their submissions
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if derr := eng.dispatcher.Shutdown(drainCtx); derr != nil {
		logger.Warn("pipeline runs still in flight at shutdown", "error", derr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
