package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig wraps every startup configuration failure.
var ErrInvalidConfig = errors.New("configuration validation failed")

// Poll drivers.
const (
	PollDriverLocal    = "local"
	PollDriverTemporal = "temporal"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Optional sinks; empty disables them
	DatabaseURL string
	NATSURL     string

	// Solana configuration
	SolanaRPCURL string
	SolanaWSURL  string
	SubmitRPCURL string
	KeypairPath  string
	NonceAccount string

	// Aggregator configuration
	JupiterAPIURL    string
	JupiterAPIKey    string
	PriceAPIURL      string
	QuoteRateLimit   float64
	QuoteConcurrency int

	// Strategy
	LiveTrading       bool
	WatchFlows        bool
	PollQuotes        bool
	PollInterval      time.Duration
	PollDriver        string
	DefaultTargetMint string
	WatchlistFile     string

	// Fees
	ComputeUnitLimit         uint32
	PriorityFeeMicroLamports uint64
	RelayTipSOL              float64
	RelayFeeProfitShare      float64
	SOLPriceUSD              float64

	// Submission
	RetryCount         int
	RetryDelay         time.Duration
	SubmissionServices []string
	AlsoSubmitFallback bool
	JitoAuthKey        string
	HeliusAPIKey       string
	NozomiAPIKey       string
	ZeroSlotKey        string
	AstralaneKey       string
	BlockRazorKey      string
	BloxRouteKey       string
	NextBlockKey       string
	LilJitEndpoint     string

	// Background refresh
	NonceRefreshInterval time.Duration
	PriceRefreshInterval time.Duration
	StreamReconnectDelay time.Duration

	// Audit
	AuditDir string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
}

// LoadDotEnv loads .env files into the environment, best-effort. Variables
// already set are left alone.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	env := &envLoader{}

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	cfg.SolanaWSURL = os.Getenv("SOLANA_WS_URL")
	cfg.SubmitRPCURL = getEnvOrDefault("SUBMIT_RPC_URL", cfg.SolanaRPCURL)
	cfg.KeypairPath = os.Getenv("KEYPAIR_PATH")
	cfg.NonceAccount = os.Getenv("NONCE_ACCOUNT")

	// Aggregator configuration
	cfg.JupiterAPIURL = getEnvOrDefault("JUPITER_API_URL", "https://lite-api.jup.ag/swap/v1")
	cfg.JupiterAPIKey = os.Getenv("JUPITER_API_KEY")
	cfg.PriceAPIURL = getEnvOrDefault("PRICE_API_URL", "https://lite-api.jup.ag/price/v3")
	cfg.QuoteRateLimit = env.getFloat("QUOTE_RATE_LIMIT", 0)
	cfg.QuoteConcurrency = env.getInt("QUOTE_CONCURRENCY", 0)

	// Strategy
	cfg.LiveTrading = env.getBool("LIVE_TRADING", false)
	cfg.WatchFlows = env.getBool("WATCH_FLOWS", false)
	cfg.PollQuotes = env.getBool("POLL_QUOTES", true)
	cfg.PollInterval = env.getDuration("POLL_INTERVAL", "2s")
	cfg.PollDriver = getEnvOrDefault("POLL_DRIVER", PollDriverLocal)
	cfg.DefaultTargetMint = getEnvOrDefault("DEFAULT_TARGET_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	cfg.WatchlistFile = getEnvOrDefault("WATCHLIST_FILE", "watchlist.yaml")

	// Fees
	cfg.ComputeUnitLimit = uint32(env.getUint("COMPUTE_UNIT_LIMIT", 400_000, 32))
	cfg.PriorityFeeMicroLamports = env.getUint("PRIORITY_FEE_MICRO_LAMPORTS", 1_000, 64)
	cfg.RelayTipSOL = env.getFloat("RELAY_TIP_SOL", 0.001)
	cfg.RelayFeeProfitShare = env.getFloat("RELAY_FEE_PROFIT_SHARE", 0)
	cfg.SOLPriceUSD = env.getFloat("SOL_PRICE_USD", 150)

	// Submission
	cfg.RetryCount = env.getInt("RETRY_COUNT", 1)
	cfg.RetryDelay = env.getDuration("RETRY_DELAY", "200ms")
	cfg.SubmissionServices = parseList("SUBMISSION_SERVICES")
	cfg.AlsoSubmitFallback = env.getBool("ALSO_SUBMIT_FALLBACK", false)
	cfg.JitoAuthKey = os.Getenv("JITO_AUTH_KEY")
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	cfg.NozomiAPIKey = os.Getenv("NOZOMI_API_KEY")
	cfg.ZeroSlotKey = os.Getenv("ZERO_SLOT_KEY")
	cfg.AstralaneKey = os.Getenv("ASTRALANE_KEY")
	cfg.BlockRazorKey = os.Getenv("BLOCKRAZOR_KEY")
	cfg.BloxRouteKey = os.Getenv("BLOXROUTE_KEY")
	cfg.NextBlockKey = os.Getenv("NEXTBLOCK_KEY")
	cfg.LilJitEndpoint = os.Getenv("LILJIT_ENDPOINT")

	// Background refresh
	cfg.NonceRefreshInterval = env.getDuration("NONCE_REFRESH_INTERVAL", "400ms")
	cfg.PriceRefreshInterval = env.getDuration("PRICE_REFRESH_INTERVAL", "10s")
	cfg.StreamReconnectDelay = env.getDuration("STREAM_RECONNECT_DELAY", "5s")

	cfg.AuditDir = getEnvOrDefault("AUDIT_DIR", ".")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "roundtrip-watchlist")

	// Return parse errors first; Validate covers cross-field rules
	if len(env.errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, env.errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	if c.WatchFlows && c.SolanaWSURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_WS_URL is required when WATCH_FLOWS is enabled"))
	}

	if c.LiveTrading {
		if c.KeypairPath == "" {
			errs = append(errs, fmt.Errorf("KEYPAIR_PATH is required when LIVE_TRADING is enabled"))
		}
		if c.NonceAccount == "" {
			errs = append(errs, fmt.Errorf("NONCE_ACCOUNT is required when LIVE_TRADING is enabled"))
		}
	}

	if c.JupiterAPIURL == "" {
		errs = append(errs, fmt.Errorf("JUPITER_API_URL is required"))
	}

	if c.PollQuotes && c.PollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least 100ms"))
	}

	if c.PollDriver != PollDriverLocal && c.PollDriver != PollDriverTemporal {
		errs = append(errs, fmt.Errorf("POLL_DRIVER must be %q or %q", PollDriverLocal, PollDriverTemporal))
	}

	if c.PollDriver == PollDriverTemporal && (c.TemporalHost == "" || c.TemporalTaskQueue == "") {
		errs = append(errs, fmt.Errorf("TEMPORAL_HOST and TEMPORAL_TASK_QUEUE are required for the temporal poll driver"))
	}

	if c.RetryCount < 1 {
		errs = append(errs, fmt.Errorf("RETRY_COUNT must be at least 1"))
	}

	if c.RelayTipSOL < 0 {
		errs = append(errs, fmt.Errorf("RELAY_TIP_SOL cannot be negative"))
	}

	if c.SOLPriceUSD <= 0 {
		errs = append(errs, fmt.Errorf("SOL_PRICE_USD must be positive"))
	}

	if c.NonceRefreshInterval <= 0 || c.PriceRefreshInterval <= 0 || c.StreamReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("refresh intervals and reconnect delay must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errs)
	}

	return nil
}

// envLoader collects parse errors so Load can report all of them at once.
type envLoader struct {
	errs []error
}

func (l *envLoader) record(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

func (l *envLoader) getDuration(key, defaultValue string) time.Duration {
	v, err := parseDuration(key, defaultValue)
	l.record(err)
	return v
}

func (l *envLoader) getInt(key string, defaultValue int) int {
	v, err := parseInt(key, defaultValue)
	l.record(err)
	return v
}

func (l *envLoader) getUint(key string, defaultValue uint64, bits int) uint64 {
	v, err := parseUint(key, defaultValue, bits)
	l.record(err)
	return v
}

func (l *envLoader) getFloat(key string, defaultValue float64) float64 {
	v, err := parseFloat(key, defaultValue)
	l.record(err)
	return v
}

func (l *envLoader) getBool(key string, defaultValue bool) bool {
	v, err := parseBool(key, defaultValue)
	l.record(err)
	return v
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseUint(key string, defaultValue uint64, bits int) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid unsigned integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}

// parseList splits a comma separated variable, dropping blanks.
func parseList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
