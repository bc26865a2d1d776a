package execution

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Sender delivers a signed transaction through one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// TransactionSender is the RPC call the fallback node needs.
type TransactionSender interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// RPCSender sends through a standard RPC node.
type RPCSender struct {
	rpc TransactionSender
}

// NewRPCSender creates the fallback sender.
func NewRPCSender(rpcClient TransactionSender) *RPCSender {
	return &RPCSender{rpc: rpcClient}
}

func (s *RPCSender) Name() string { return "rpc" }

func (s *RPCSender) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
}
