package execution

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/ybbus/jsonrpc/v3"
)

// RelayKind enumerates the supported relay services.
type RelayKind int

const (
	RelayJito RelayKind = iota
	RelayLilJit
	RelayHelius
	RelayAstralane
	RelayZeroSlot
	RelayNozomi
	RelayBlockRazor
	RelayBloxRoute
	RelayNextBlock
)

var relayNames = map[RelayKind]string{
	RelayJito:       "jito",
	RelayLilJit:     "liljit",
	RelayHelius:     "helius",
	RelayAstralane:  "astralane",
	RelayZeroSlot:   "zeroslot",
	RelayNozomi:     "nozomi",
	RelayBlockRazor: "blockrazor",
	RelayBloxRoute:  "bloxroute",
	RelayNextBlock:  "nextblock",
}

func (k RelayKind) String() string {
	if name, ok := relayNames[k]; ok {
		return name
	}
	return fmt.Sprintf("relay(%d)", int(k))
}

// ParseRelayKind maps a configured service name to a relay. Matching is
// case-insensitive and accepts the usual aliases.
func ParseRelayKind(name string) (RelayKind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jito":
		return RelayJito, true
	case "liljit":
		return RelayLilJit, true
	case "helius":
		return RelayHelius, true
	case "astralane", "astra":
		return RelayAstralane, true
	case "zeroslot", "zero_slot":
		return RelayZeroSlot, true
	case "nozomi":
		return RelayNozomi, true
	case "blockrazor", "brazor":
		return RelayBlockRazor, true
	case "bloxroute":
		return RelayBloxRoute, true
	case "nextblock":
		return RelayNextBlock, true
	}
	return 0, false
}

// RelayCredentials holds the per-service keys. A service is only enabled
// when its credential is set.
type RelayCredentials struct {
	JitoAuthKey    string
	HeliusAPIKey   string
	NozomiAPIKey   string
	ZeroSlotKey    string
	AstralaneKey   string
	BlockRazorKey  string
	BloxRouteKey   string
	NextBlockKey   string
	LilJitEndpoint string
}

// RelayChannel describes how to reach one relay.
type RelayChannel struct {
	Kind       RelayKind
	Endpoint   string
	Headers    map[string]string
	TipAccount solana.PublicKey
}

// Name returns the channel's metric and log label.
func (c RelayChannel) Name() string {
	return c.Kind.String()
}

type relayDefaults struct {
	endpoint   string
	tipAccount string
}

var defaultRelays = map[RelayKind]relayDefaults{
	RelayJito:       {"https://mainnet.block-engine.jito.wtf/api/v1/transactions", "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"},
	RelayLilJit:     {"", "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"},
	RelayHelius:     {"https://sender.helius-rpc.com/fast", "4ACfpUFoaSD9bfPdeu6DBt89gB6ENTeHBXCAi87NhDEE"},
	RelayAstralane:  {"https://axiom-fra.gateway.astralane.io/iris", "astrazznxsGUhWShqgNtAdfrzP2G83DzcWVJDxwV9bF"},
	RelayZeroSlot:   {"https://de.0slot.trade", "6fQaVhYZA4w3MBSXjJ81Vf6W1EDYeUPXpgVQ6UQyU1Av"},
	RelayNozomi:     {"https://fra1.nozomi.temporal.xyz", "TEMPaMeCRFAS9EKF53Jd6KpHxgL47uWLcpFArU1Fanq"},
	RelayBlockRazor: {"https://frankfurt.solana.blockrazor.xyz/sendTransaction", "FjmZZrFvhnqqb9ThCuMVnENaM3JGVuGWNyCAxRJcFpg9"},
	RelayBloxRoute:  {"https://germany.solana.dex.blxrbdn.com/api/v2/submit", "HWEoBxYs7ssKuudEjzjmpfJVX7Dvi7wescFsVx2L5yoY"},
	RelayNextBlock:  {"https://frankfurt.nextblock.io/api/v2/submit", "NextbLoCkVtMGcV47JzewQdvBpLqT9TxQFozQkN98pE"},
}

// BuildRelayChannels turns the configured service names into channels.
// Unknown names, duplicates and services without credentials are skipped.
// It has no side effects.
func BuildRelayChannels(names []string, creds RelayCredentials) []RelayChannel {
	seen := make(map[RelayKind]bool)
	var out []RelayChannel
	for _, name := range names {
		kind, ok := ParseRelayKind(name)
		if !ok || seen[kind] {
			continue
		}
		ch, ok := relayChannel(kind, creds)
		if !ok {
			continue
		}
		seen[kind] = true
		out = append(out, ch)
	}
	return out
}

func relayChannel(kind RelayKind, creds RelayCredentials) (RelayChannel, bool) {
	d := defaultRelays[kind]
	ch := RelayChannel{Kind: kind, Endpoint: d.endpoint, Headers: map[string]string{}}
	if tip, err := solana.PublicKeyFromBase58(d.tipAccount); err == nil {
		ch.TipAccount = tip
	}

	switch kind {
	case RelayJito:
		if creds.JitoAuthKey == "" {
			return ch, false
		}
		ch.Headers["x-jito-auth"] = creds.JitoAuthKey
	case RelayLilJit:
		if creds.LilJitEndpoint == "" {
			return ch, false
		}
		ch.Endpoint = creds.LilJitEndpoint
	case RelayHelius:
		if creds.HeliusAPIKey == "" {
			return ch, false
		}
		ch.Endpoint = withQuery(ch.Endpoint, "api-key", creds.HeliusAPIKey)
	case RelayAstralane:
		if creds.AstralaneKey == "" {
			return ch, false
		}
		ch.Endpoint = withQuery(ch.Endpoint, "api-key", creds.AstralaneKey)
	case RelayZeroSlot:
		if creds.ZeroSlotKey == "" {
			return ch, false
		}
		ch.Endpoint = withQuery(ch.Endpoint, "api-key", creds.ZeroSlotKey)
	case RelayNozomi:
		if creds.NozomiAPIKey == "" {
			return ch, false
		}
		ch.Endpoint = withQuery(ch.Endpoint, "c", creds.NozomiAPIKey)
	case RelayBlockRazor:
		if creds.BlockRazorKey == "" {
			return ch, false
		}
		ch.Headers["apikey"] = creds.BlockRazorKey
	case RelayBloxRoute:
		if creds.BloxRouteKey == "" {
			return ch, false
		}
		ch.Headers["Authorization"] = creds.BloxRouteKey
	case RelayNextBlock:
		if creds.NextBlockKey == "" {
			return ch, false
		}
		ch.Headers["Authorization"] = creds.NextBlockKey
	default:
		return ch, false
	}
	return ch, true
}

func withQuery(endpoint, key, value string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// RelaySender submits through a relay's JSON-RPC sendTransaction.
type RelaySender struct {
	channel RelayChannel
	rpc     jsonrpc.RPCClient
}

// NewRelaySender creates a sender for channel.
func NewRelaySender(channel RelayChannel, httpClient *http.Client) *RelaySender {
	return &RelaySender{
		channel: channel,
		rpc: jsonrpc.NewClientWithOpts(channel.Endpoint, &jsonrpc.RPCClientOpts{
			HTTPClient:    httpClient,
			CustomHeaders: channel.Headers,
		}),
	}
}

func (s *RelaySender) Name() string { return s.channel.Name() }

// TipAccount is where this relay expects its tip.
func (s *RelaySender) TipAccount() solana.PublicKey { return s.channel.TipAccount }

// Send posts the signed transaction, base64 encoded, with preflight skipped.
func (s *RelaySender) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to encode transaction: %w", err)
	}
	resp, err := s.rpc.Call(ctx, "sendTransaction",
		base64.StdEncoding.EncodeToString(raw),
		map[string]any{"encoding": "base64", "skipPreflight": true},
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%s: %w", s.Name(), err)
	}
	if resp.Error != nil {
		return solana.Signature{}, fmt.Errorf("%s: %w", s.Name(), resp.Error)
	}
	sig, err := resp.GetString()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%s: unexpected result: %w", s.Name(), err)
	}
	if sig == "" {
		return solana.Signature{}, errors.New(s.Name() + ": empty signature")
	}
	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		// Some relays answer with a bundle or request id; fall back to the
		// transaction's own signature.
		if len(tx.Signatures) > 0 {
			return tx.Signatures[0], nil
		}
		return solana.Signature{}, fmt.Errorf("%s: invalid signature %q: %w", s.Name(), sig, err)
	}
	return parsed, nil
}
