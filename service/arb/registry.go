package arb

import (
	"fmt"
	"strings"
)

// Well-known mints.
const (
	NativeMint = "So11111111111111111111111111111111111111112"
	USDCMint   = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint   = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// defaultTokens is the popular-token table used for symbol and decimal lookups.
var defaultTokens = []TokenMeta{
	{Mint: NativeMint, Symbol: "SOL", Decimals: 9},
	{Mint: USDCMint, Symbol: "USDC", Decimals: 6},
	{Mint: USDTMint, Symbol: "USDT", Decimals: 6},
	{Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Symbol: "JUP", Decimals: 6},
	{Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Symbol: "BONK", Decimals: 5},
	{Mint: "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm", Symbol: "WIF", Decimals: 6},
	{Mint: "jtojtomepa8beP8AuQc6eXt5FriJwfFMwQx2v2f9mCL", Symbol: "JTO", Decimals: 9},
	{Mint: "HZ1JovNiVvGrGNiiYvEozEVgZ58xaU3RKwX8eACQBCt3", Symbol: "PYTH", Decimals: 6},
	{Mint: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Symbol: "RAY", Decimals: 6},
	{Mint: "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", Symbol: "mSOL", Decimals: 9},
	{Mint: "J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn", Symbol: "jitoSOL", Decimals: 9},
	{Mint: "bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1", Symbol: "bSOL", Decimals: 9},
}

// defaultPrograms is the DEX program allow-list used by the big-trade trigger.
var defaultPrograms = map[string]string{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter v6",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium AMM",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium CLMM",
	"CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C": "Raydium CPMM",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca Whirlpool",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "Meteora DLMM",
	"Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB": "Meteora Pools",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":  "Pump.fun AMM",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
	"PhoeNiXZ8ByJGLkxNfZRnkUfjvmuYqLR89jjFHGqdXY":  "Phoenix",
	"2wT8Yq49kHgDzXuPxZSaeLaH1qbmGXtEyPy64bL7aD3c": "Lifinity v2",
	"opnb2LAfJYbRMAHHvqjCwQxanZn7ReEHp1k81EohpZb":  "OpenBook v2",
}

// Registry is the read-only token table and DEX program allow-list.
type Registry struct {
	tokens   map[string]TokenMeta
	symbols  map[string]string
	programs map[string]string
}

// NewRegistry builds a registry. Later tokens override earlier ones with the same mint.
func NewRegistry(tokens []TokenMeta, programs map[string]string) *Registry {
	r := &Registry{
		tokens:   make(map[string]TokenMeta, len(tokens)),
		symbols:  make(map[string]string, len(tokens)),
		programs: make(map[string]string, len(programs)),
	}
	for _, t := range tokens {
		r.tokens[t.Mint] = t
	}
	for mint, t := range r.tokens {
		key := strings.ToLower(t.Symbol)
		// a shared symbol resolves to the smaller mint
		if prev, ok := r.symbols[key]; !ok || mint < prev {
			r.symbols[key] = mint
		}
	}
	for id, name := range programs {
		r.programs[id] = name
	}
	return r
}

// DefaultRegistry returns the built-in popular tokens and DEX programs.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultTokens, defaultPrograms)
}

// WithTokens returns a copy of r with extra tokens added. A token may
// override an existing mint, but a symbol (compared case-insensitively)
// may only belong to one mint.
func (r *Registry) WithTokens(extra []TokenMeta) (*Registry, error) {
	owners := make(map[string]string, len(r.tokens)+len(extra))
	for mint, t := range r.tokens {
		owners[mint] = strings.ToLower(t.Symbol)
	}
	for _, t := range extra {
		owners[t.Mint] = strings.ToLower(t.Symbol)
	}

	bySymbol := make(map[string]string, len(owners))
	for mint, sym := range owners {
		prev, ok := bySymbol[sym]
		if !ok {
			bySymbol[sym] = mint
			continue
		}
		a, b := min(prev, mint), max(prev, mint)
		return nil, fmt.Errorf("%w: %q is used by %s and %s", ErrDuplicateSymbol, sym, a, b)
	}

	tokens := make([]TokenMeta, 0, len(r.tokens)+len(extra))
	for _, t := range r.tokens {
		tokens = append(tokens, t)
	}
	return NewRegistry(append(tokens, extra...), r.programs), nil
}

// Token returns the registered metadata for mint.
func (r *Registry) Token(mint string) (TokenMeta, bool) {
	t, ok := r.tokens[mint]
	return t, ok
}

// Lookup returns metadata for mint, falling back to 9 decimals for the
// native mint and 6 decimals with symbol UNKNOWN for anything else.
func (r *Registry) Lookup(mint string) TokenMeta {
	if t, ok := r.tokens[mint]; ok {
		return t
	}
	if mint == NativeMint {
		return TokenMeta{Mint: mint, Symbol: "SOL", Decimals: 9}
	}
	return TokenMeta{Mint: mint, Symbol: "UNKNOWN", Decimals: 6}
}

// Symbol returns the registered symbol for mint or "?".
func (r *Registry) Symbol(mint string) string {
	if t, ok := r.tokens[mint]; ok {
		return t.Symbol
	}
	return "?"
}

// ProgramName returns the display name of an allow-listed program.
func (r *Registry) ProgramName(programID string) (string, bool) {
	name, ok := r.programs[programID]
	return name, ok
}

// RecognizedPrograms returns the display names of the allow-listed programs
// among ids, in input order.
func (r *Registry) RecognizedPrograms(ids []string) []string {
	var names []string
	for _, id := range ids {
		if name, ok := r.programs[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// SymbolList renders mints as a comma separated list of symbols.
func (r *Registry) SymbolList(mints []string) string {
	symbols := make([]string, len(mints))
	for i, m := range mints {
		symbols[i] = r.Symbol(m)
	}
	return strings.Join(symbols, ", ")
}

// Resolve accepts a mint or a registered symbol (case-insensitive) and
// returns its metadata. Unknown input is treated as a mint.
func (r *Registry) Resolve(mintOrSymbol string) TokenMeta {
	if t, ok := r.tokens[mintOrSymbol]; ok {
		return t
	}
	if mint, ok := r.symbols[strings.ToLower(mintOrSymbol)]; ok {
		return r.tokens[mint]
	}
	return r.Lookup(mintOrSymbol)
}
