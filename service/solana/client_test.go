package solana

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRPCClient returns queued GetTransaction responses.
type mockRPCClient struct {
	mu        sync.Mutex
	responses []mockTxResponse
	byDefault *rpc.GetTransactionResult
	calls     int
}

type mockTxResponse struct {
	result *rpc.GetTransactionResult
	err    error
}

func (m *mockRPCClient) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.responses) == 0 {
		return m.byDefault, nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r.result, r.err
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRPCClient) GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	return nil, errors.New("not implemented")
}

func (m *mockRPCClient) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not implemented")
}

func (m *mockRPCClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestClient(rpcClient RPCClient) *Client {
	c := NewClient(rpcClient, testLogger())
	c.retryDelay = time.Millisecond
	return c
}

func TestFetchTransaction_RetriesNotFound(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	mock := &mockRPCClient{
		responses: []mockTxResponse{
			{err: rpc.ErrNotFound},
			{result: nil},
			{result: swapResult(t, payer)},
		},
	}

	ltx, err := newTestClient(mock).FetchTransaction(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Equal(t, payer.String(), ltx.FeePayer)
	assert.Equal(t, 3, mock.callCount())
}

func TestFetchTransaction_GivesUp(t *testing.T) {
	mock := &mockRPCClient{}

	_, err := newTestClient(mock).FetchTransaction(context.Background(), solana.Signature{})
	require.Error(t, err)
	assert.Equal(t, 3, mock.callCount())
}

func TestFetchTransaction_PermanentError(t *testing.T) {
	mock := &mockRPCClient{
		responses: []mockTxResponse{{err: errors.New("invalid params")}},
	}

	_, err := newTestClient(mock).FetchTransaction(context.Background(), solana.Signature{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid params")
	assert.Equal(t, 1, mock.callCount())
}
