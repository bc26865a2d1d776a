package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/patrickmn/go-cache"
)

// LookupFetcher resolves address lookup tables.
type LookupFetcher interface {
	Fetch(ctx context.Context, tables []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
}

// MultipleAccountsGetter reads several accounts in one call.
type MultipleAccountsGetter interface {
	GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)
}

// LookupCache fetches lookup tables and remembers them for ttl. The tables
// the aggregator routes through rarely change.
type LookupCache struct {
	rpc   MultipleAccountsGetter
	cache *cache.Cache
}

// NewLookupCache creates a cache.
func NewLookupCache(rpcClient MultipleAccountsGetter, ttl time.Duration) *LookupCache {
	return &LookupCache{
		rpc:   rpcClient,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Fetch returns the addresses of every table, fetching only those not cached.
func (l *LookupCache) Fetch(ctx context.Context, tables []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	out := make(map[solana.PublicKey]solana.PublicKeySlice, len(tables))
	var missing []solana.PublicKey
	for _, t := range tables {
		if v, ok := l.cache.Get(t.String()); ok {
			out[t] = v.(solana.PublicKeySlice)
			continue
		}
		missing = append(missing, t)
	}
	if len(missing) == 0 {
		return out, nil
	}

	res, err := l.rpc.GetMultipleAccounts(ctx, missing...)
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup tables: %w", err)
	}
	if res == nil || len(res.Value) != len(missing) {
		return nil, fmt.Errorf("lookup table response has wrong length")
	}
	for i, acct := range res.Value {
		key := missing[i]
		if acct == nil || acct.Data == nil {
			return nil, fmt.Errorf("lookup table %s not found", key)
		}
		state, err := addresslookuptable.DecodeAddressLookupTableState(acct.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("failed to decode lookup table %s: %w", key, err)
		}
		out[key] = state.Addresses
		l.cache.SetDefault(key.String(), state.Addresses)
	}
	return out, nil
}
