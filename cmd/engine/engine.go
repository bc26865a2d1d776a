package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/config"
	"github.com/brojonat/roundtrip/service/db"
	"github.com/brojonat/roundtrip/service/execution"
	"github.com/brojonat/roundtrip/service/jupiter"
	"github.com/brojonat/roundtrip/service/metrics"
	natspkg "github.com/brojonat/roundtrip/service/nats"
	"github.com/brojonat/roundtrip/service/pricefeed"
	"github.com/brojonat/roundtrip/service/server"
	"github.com/brojonat/roundtrip/service/solana"
	"github.com/brojonat/roundtrip/service/trigger"
)

const (
	auditBuffer      = 4096
	lookupTableTTL   = 10 * time.Minute
	relayHTTPTimeout = 3 * time.Second
)

// engine owns every long-lived component of the process.
type engine struct {
	cfg       *config.Config
	watchlist *config.Watchlist
	registry  *arb.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	startedAt time.Time

	solana     *solana.Client
	prices     *pricefeed.Feed
	nonces     *execution.NonceCache
	router     *execution.Router
	pipeline   *arb.Pipeline
	dispatcher *arb.Dispatcher
	poller     *trigger.Poller
	bigTrade   *trigger.BigTrade

	pool      *pgxpool.Pool
	store     *db.Store
	publisher natspkg.Publisher
	audits    []*arb.FileAudit
}

func newEngine(ctx context.Context, cfg *config.Config, wl *config.Watchlist, logger *slog.Logger) (*engine, error) {
	registry, err := arb.DefaultRegistry().WithTokens(wl.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build token registry: %w", err)
	}

	e := &engine{
		cfg:       cfg,
		watchlist: wl,
		registry:  registry,
		metrics:   metrics.NewMetrics(prometheus.DefaultRegisterer),
		logger:    logger,
		startedAt: time.Now(),
	}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	simAudit := arb.NewFileAudit("simulation", filepath.Join(cfg.AuditDir, "logs.txt"), auditBuffer, e.metrics, logger)
	tradeAudit := arb.NewFileAudit("big_trades", filepath.Join(cfg.AuditDir, "big_trades.txt"), auditBuffer, e.metrics, logger)
	e.audits = append(e.audits, simAudit, tradeAudit)

	rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL, e.metrics)
	e.solana = solana.NewClient(rpcClient, logger)
	logger.Info("initialized solana RPC client", "url", cfg.SolanaRPCURL)

	var payer solanago.PrivateKey
	if cfg.KeypairPath != "" {
		key, err := solanago.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load keypair: %w", err)
		}
		payer = key
		logger.Info("loaded keypair", "payer", payer.PublicKey().String())
	}

	jupCfg := jupiter.Config{
		BaseURL: cfg.JupiterAPIURL,
		APIKey:  cfg.JupiterAPIKey,
	}
	if payer != nil {
		jupCfg.User = payer.PublicKey()
	}
	if cfg.QuoteRateLimit > 0 {
		jupCfg.Limiter = rate.NewLimiter(rate.Limit(cfg.QuoteRateLimit), max(1, int(cfg.QuoteRateLimit)))
	}
	jup := jupiter.NewClient(jupCfg, e.metrics, logger)

	e.prices = pricefeed.New(cfg.PriceAPIURL, cfg.JupiterAPIKey, cfg.SOLPriceUSD, nil, e.metrics, logger)

	observers, err := e.openSinks(ctx)
	if err != nil {
		return nil, err
	}

	var executor arb.Executor
	if cfg.LiveTrading {
		exec, err := e.newExecutor(ctx, rpcClient, jup, payer)
		if err != nil {
			return nil, err
		}
		executor = exec
	}

	fanout := arb.NewFanout(jup, cfg.QuoteConcurrency, simAudit, e.metrics, logger)
	evaluator := arb.NewEvaluator(e.registry, simAudit, e.metrics)
	e.pipeline = arb.NewPipeline(
		arb.PipelineConfig{Fee: cfg.FeeModel(), Live: cfg.LiveTrading},
		fanout, evaluator, e.prices, executor, e.registry, tradeAudit, e.metrics, logger,
		observers...,
	)

	// In-flight runs outlive the shutdown signal so a submission is never cut short.
	e.dispatcher = arb.NewDispatcher(context.WithoutCancel(ctx), e.pipeline, e.metrics, logger)

	defaultTarget := cfg.DefaultTargetMint
	if wl.DefaultTarget != "" {
		defaultTarget = wl.DefaultTarget
	}
	e.poller = trigger.NewPoller(wl.Entries, defaultTarget, cfg.PollInterval, e.registry, e.dispatcher, logger)
	e.bigTrade = trigger.NewBigTrade(wl.Entries, e.registry, tradeAudit, e.dispatcher, e.metrics, logger)

	ok = true
	return e, nil
}

// openSinks connects the optional ledger and event bus and returns them as
// pipeline observers.
func (e *engine) openSinks(ctx context.Context) ([]arb.Observer, error) {
	var observers []arb.Observer

	if e.cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, e.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		e.store = db.NewStore(pool, e.metrics)
		if err := e.store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		observers = append(observers, db.NewRecorder(e.store, e.logger))
		e.logger.Info("connected to database")
	}

	if e.cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(e.cfg.NATSURL, e.metrics, e.logger)
		if err != nil {
			return nil, err
		}
		e.publisher = pub
		observers = append(observers, natspkg.NewObserver(pub, e.logger))
	}

	return observers, nil
}

func (e *engine) newExecutor(ctx context.Context, rpcClient solana.RPCClient, jup *jupiter.Client, payer solanago.PrivateKey) (*execution.Executor, error) {
	cfg := e.cfg

	nonceAccount, err := solanago.PublicKeyFromBase58(cfg.NonceAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid NONCE_ACCOUNT: %w", err)
	}
	e.nonces = execution.NewNonceCache(nonceAccount, rpcClient, e.metrics, e.logger)
	if err := e.nonces.Refresh(ctx); err != nil {
		e.logger.Warn("initial nonce refresh failed, trades are skipped until it succeeds", "error", err)
	}

	relays := execution.BuildRelayChannels(cfg.SubmissionServices, execution.RelayCredentials{
		JitoAuthKey:    cfg.JitoAuthKey,
		HeliusAPIKey:   cfg.HeliusAPIKey,
		NozomiAPIKey:   cfg.NozomiAPIKey,
		ZeroSlotKey:    cfg.ZeroSlotKey,
		AstralaneKey:   cfg.AstralaneKey,
		BlockRazorKey:  cfg.BlockRazorKey,
		BloxRouteKey:   cfg.BloxRouteKey,
		NextBlockKey:   cfg.NextBlockKey,
		LilJitEndpoint: cfg.LilJitEndpoint,
	})
	httpClient := &http.Client{Timeout: relayHTTPTimeout}
	channels := make([]execution.Channel, 0, len(relays))
	for _, rc := range relays {
		channels = append(channels, execution.Channel{
			Sender:     execution.NewRelaySender(rc, httpClient),
			TipAccount: rc.TipAccount,
		})
	}

	submitRPC := rpcClient
	if cfg.SubmitRPCURL != cfg.SolanaRPCURL {
		submitRPC = solana.NewRPCClient(cfg.SubmitRPCURL, e.metrics)
	}

	e.router = execution.NewRouter(execution.RouterConfig{
		RetryCount:   cfg.RetryCount,
		RetryDelay:   cfg.RetryDelay,
		AlsoFallback: cfg.AlsoSubmitFallback,
	}, channels, execution.NewRPCSender(submitRPC), e.nonces, e.metrics, e.logger)

	builder := execution.NewBuilder(
		execution.BuilderConfig{Payer: payer, RetryCount: cfg.RetryCount},
		jup,
		e.nonces,
		execution.NewLookupCache(rpcClient, lookupTableTTL),
	)

	e.logger.Info("live trading enabled",
		"payer", payer.PublicKey().String(),
		"nonce_account", nonceAccount.String(),
		"channels", channelNames(e.router.Targets()),
	)
	return execution.NewExecutor(builder, e.router, cfg.FeeModel(), e.logger), nil
}

// newStream builds the ledger stream over every mint with a big-trade threshold.
func (e *engine) newStream() *solana.Stream {
	var mentions []solanago.PublicKey
	for _, entry := range e.watchlist.Entries {
		if entry.BigTradeThreshold <= 0 {
			continue
		}
		key, err := solanago.PublicKeyFromBase58(entry.Mint)
		if err != nil {
			e.logger.Warn("skipping unwatchable mint", "mint", entry.Mint, "error", err)
			continue
		}
		mentions = append(mentions, key)
	}

	return solana.NewStream(solana.StreamConfig{
		Mentions:       mentions,
		ReconnectDelay: e.cfg.StreamReconnectDelay,
	}, solana.NewWSDialer(e.cfg.SolanaWSURL), e.solana, e.metrics, e.logger)
}

// ledger returns the store as a server.SubmissionStore, or nil when no
// database is configured.
func (e *engine) ledger() server.SubmissionStore {
	if e.store == nil {
		return nil
	}
	return e.store
}

// Status implements server.StatusProvider.
func (e *engine) Status(ctx context.Context) server.Status {
	st := server.Status{
		StartedAt:   e.startedAt.UTC(),
		Uptime:      time.Since(e.startedAt).Round(time.Second).String(),
		Live:        e.cfg.LiveTrading,
		WatchFlows:  e.cfg.WatchFlows,
		PollQuotes:  e.cfg.PollQuotes,
		PollDriver:  e.cfg.PollDriver,
		SOLPriceUSD: e.prices.Price(),
		InFlight:    e.dispatcher.InFlight(),
		Channels:    []string{},
	}
	if e.nonces != nil {
		if snap, ok := e.nonces.Current(); ok {
			st.NonceBlockhash = snap.Blockhash.String()
			st.NonceAge = time.Since(snap.FetchedAt).Round(time.Millisecond).String()
		}
	}
	if e.router != nil {
		st.Channels = channelNames(e.router.Targets())
	}
	for _, entry := range e.watchlist.Entries {
		st.Watchlist = append(st.Watchlist, server.WatchlistStatus{
			Mint:              entry.Mint,
			Symbol:            e.registry.Lookup(entry.Mint).Symbol,
			From:              entry.From,
			To:                entry.To,
			Steps:             entry.Steps,
			MinProfit:         entry.MinProfit,
			BigTradeThreshold: entry.BigTradeThreshold,
		})
	}
	if e.store != nil {
		counts, err := e.store.CountByStatus(ctx)
		if err != nil {
			e.logger.Warn("failed to count submissions", "error", err)
		} else {
			st.Counts = counts
		}
	}
	return st
}

// Close releases sinks and flushes the audit files.
func (e *engine) Close() {
	if e.publisher != nil {
		e.publisher.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	for _, a := range e.audits {
		a.Close()
	}
}

func channelNames(channels []execution.Channel) []string {
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, c.Sender.Name())
	}
	return names
}
