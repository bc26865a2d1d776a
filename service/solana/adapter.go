package solana

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/roundtrip/service/metrics"
)

// RPCClient is the subset of Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)

	GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)

	SendTransactionWithOpts(
		ctx context.Context,
		tx *solana.Transaction,
		opts rpc.TransactionOpts,
	) (solana.Signature, error)
}

// realRPCClient adapts the solana-go RPC client to our RPCClient interface
// and records a metric for every call.
type realRPCClient struct {
	client  *rpc.Client
	metrics *metrics.Metrics
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string, m *metrics.Metrics) RPCClient {
	return &realRPCClient{
		client:  rpc.New(rpcURL),
		metrics: m,
	}
}

func (r *realRPCClient) record(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}

func (r *realRPCClient) GetTransaction(
	ctx context.Context,
	signature solana.Signature,
	opts *rpc.GetTransactionOpts,
) (*rpc.GetTransactionResult, error) {
	start := time.Now()
	out, err := r.client.GetTransaction(ctx, signature, opts)
	r.record("getTransaction", start, err)
	return out, err
}

func (r *realRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	start := time.Now()
	out, err := r.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	r.record("getAccountInfo", start, err)
	return out, err
}

func (r *realRPCClient) GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	start := time.Now()
	out, err := r.client.GetMultipleAccounts(ctx, accounts...)
	r.record("getMultipleAccounts", start, err)
	return out, err
}

func (r *realRPCClient) SendTransactionWithOpts(
	ctx context.Context,
	tx *solana.Transaction,
	opts rpc.TransactionOpts,
) (solana.Signature, error) {
	start := time.Now()
	sig, err := r.client.SendTransactionWithOpts(ctx, tx, opts)
	r.record("sendTransaction", start, err)
	return sig, err
}
