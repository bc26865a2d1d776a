package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client fetches and parses ledger transactions.
type Client struct {
	rpc         RPCClient
	logger      *slog.Logger
	maxAttempts uint64
	retryDelay  time.Duration
}

// NewClient creates a new Solana client.
func NewClient(rpcClient RPCClient, logger *slog.Logger) *Client {
	return &Client{
		rpc:         rpcClient,
		logger:      logger.With("component", "solana_client"),
		maxAttempts: 3,
		retryDelay:  250 * time.Millisecond,
	}
}

// RPC returns the underlying RPC client.
func (c *Client) RPC() RPCClient {
	return c.rpc
}

// FetchTransaction fetches a confirmed transaction and parses it. A
// transaction announced by a logs notification is not always queryable yet,
// so a missing result is retried a few times.
func (c *Client) FetchTransaction(ctx context.Context, signature solana.Signature) (*LedgerTransaction, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	var result *rpc.GetTransactionResult
	attempt := 0
	op := func() error {
		attempt++
		var err error
		result, err = c.rpc.GetTransaction(ctx, signature, opts)
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				return err
			}
			// Handle rate limiting (429 Too Many Requests) the same way as not found
			if strings.Contains(err.Error(), "429") {
				return err
			}
			return backoff.Permanent(err)
		}
		if result == nil || result.Meta == nil {
			return rpc.ErrNotFound
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), c.maxAttempts-1),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.DebugContext(ctx, "transaction not available yet, retrying",
			"signature", signature.String(),
			"attempt", attempt,
			"error", err,
			"wait", wait,
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}

	return ParseTransaction(signature, result)
}
