package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/roundtrip/service/metrics"
)

// NonceAccountSize is the size of a system nonce account.
const NonceAccountSize = 80

const nonceStateInitialized = 1

// ErrNonceUnavailable is returned when no nonce snapshot has been loaded.
var ErrNonceUnavailable = errors.New("durable nonce not available")

// NonceSnapshot is the decoded state of a durable nonce account.
type NonceSnapshot struct {
	Account              solana.PublicKey
	Authority            solana.PublicKey
	Blockhash            solana.Hash
	LamportsPerSignature uint64
	FetchedAt            time.Time
}

// NonceSource provides the latest nonce snapshot without blocking.
type NonceSource interface {
	Current() (*NonceSnapshot, bool)
}

// AccountInfoGetter reads a single account.
type AccountInfoGetter interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// DecodeNonceAccount parses the versioned nonce layout:
// u32 version, u32 state, 32 byte authority, 32 byte blockhash, u64 fee.
func DecodeNonceAccount(data []byte) (*NonceSnapshot, error) {
	if len(data) < NonceAccountSize {
		return nil, fmt.Errorf("nonce account data too short: %d bytes", len(data))
	}
	dec := bin.NewBinDecoder(data)
	if _, err := dec.ReadUint32(bin.LE); err != nil {
		return nil, fmt.Errorf("failed to read nonce version: %w", err)
	}
	state, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce state: %w", err)
	}
	if state != nonceStateInitialized {
		return nil, fmt.Errorf("nonce account is not initialized (state %d)", state)
	}
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce authority: %w", err)
	}
	hash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce blockhash: %w", err)
	}
	fee, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce fee: %w", err)
	}
	return &NonceSnapshot{
		Authority:            solana.PublicKeyFromBytes(authority),
		Blockhash:            solana.HashFromBytes(hash),
		LamportsPerSignature: fee,
	}, nil
}

// NonceCache keeps the nonce account's current blockhash in memory. A single
// goroutine refreshes it; readers load an atomic snapshot.
type NonceCache struct {
	account solana.PublicKey
	rpc     AccountInfoGetter
	snap    atomic.Pointer[NonceSnapshot]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewNonceCache creates an empty cache for account.
func NewNonceCache(account solana.PublicKey, rpcClient AccountInfoGetter, m *metrics.Metrics, logger *slog.Logger) *NonceCache {
	return &NonceCache{
		account: account,
		rpc:     rpcClient,
		metrics: m,
		logger:  logger.With("component", "nonce_cache", "account", account.String()),
	}
}

// Current returns the latest snapshot.
func (c *NonceCache) Current() (*NonceSnapshot, bool) {
	s := c.snap.Load()
	return s, s != nil
}

// Refresh reads the nonce account once.
func (c *NonceCache) Refresh(ctx context.Context) error {
	snap, err := c.fetch(ctx)
	c.metrics.RecordNonceRefresh(err)
	if err != nil {
		return err
	}
	prev := c.snap.Swap(snap)
	if prev != nil && prev.Blockhash != snap.Blockhash {
		c.logger.DebugContext(ctx, "nonce advanced", "blockhash", snap.Blockhash.String())
	}
	return nil
}

func (c *NonceCache) fetch(ctx context.Context) (*NonceSnapshot, error) {
	res, err := c.rpc.GetAccountInfo(ctx, c.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce account: %w", err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, fmt.Errorf("nonce account %s not found", c.account)
	}
	snap, err := DecodeNonceAccount(res.Value.Data.GetBinary())
	if err != nil {
		return nil, err
	}
	snap.Account = c.account
	snap.FetchedAt = time.Now()
	return snap, nil
}

// Run refreshes every interval until ctx is done.
func (c *NonceCache) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.WarnContext(ctx, "nonce refresh failed", "error", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.WarnContext(ctx, "nonce refresh failed", "error", err)
			}
		}
	}
}
