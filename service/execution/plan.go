package execution

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
)

// ErrPlanConsumed is returned when a plan is submitted twice.
var ErrPlanConsumed = errors.New("submission plan already consumed")

// TipParams sizes the relay tip and the compute budget.
type TipParams struct {
	Lamports                 uint64
	ComputeUnits             uint32
	PriorityFeeMicroLamports uint64
}

// SubmissionPlan is everything needed to sign the trade for any channel.
// It is consumed at most once.
type SubmissionPlan struct {
	Payer        solana.PublicKey
	Instructions []solana.Instruction
	Nonce        NonceSnapshot
	Signers      []solana.PrivateKey
	LookupTables map[solana.PublicKey]solana.PublicKeySlice
	Tip          TipParams
	RetryCount   int
	// PreviewSignature is the signature of the untipped transaction, known
	// before anything is sent.
	PreviewSignature solana.Signature

	consumed atomic.Bool
}

// Consume marks the plan as used. Only the first call succeeds.
func (p *SubmissionPlan) Consume() error {
	if !p.consumed.CompareAndSwap(false, true) {
		return ErrPlanConsumed
	}
	return nil
}

// Transaction assembles and signs the trade. The advance-nonce instruction
// is always first. A non-zero tipAccount appends a tip transfer. The plan's
// instructions are copied, since assembly rewrites account meta flags.
func (p *SubmissionPlan) Transaction(tipAccount solana.PublicKey) (*solana.Transaction, error) {
	ixs := make([]solana.Instruction, 0, len(p.Instructions)+4)
	ixs = append(ixs, system.NewAdvanceNonceAccountInstruction(
		p.Nonce.Account,
		solana.SysVarRecentBlockHashesPubkey,
		p.Nonce.Authority,
	).Build())
	if p.Tip.ComputeUnits > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(p.Tip.ComputeUnits).Build())
	}
	if p.Tip.PriorityFeeMicroLamports > 0 {
		ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(p.Tip.PriorityFeeMicroLamports).Build())
	}
	for _, ix := range p.Instructions {
		c, err := cloneInstruction(ix)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, c)
	}
	if !tipAccount.IsZero() && p.Tip.Lamports > 0 {
		ixs = append(ixs, system.NewTransferInstruction(p.Tip.Lamports, p.Payer, tipAccount).Build())
	}

	opts := []solana.TransactionOption{solana.TransactionPayer(p.Payer)}
	if len(p.LookupTables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(p.LookupTables))
	}
	tx, err := solana.NewTransaction(ixs, p.Nonce.Blockhash, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble transaction: %w", err)
	}

	if _, err := tx.Sign(p.signer); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

func (p *SubmissionPlan) signer(key solana.PublicKey) *solana.PrivateKey {
	for i := range p.Signers {
		if p.Signers[i].PublicKey().Equals(key) {
			return &p.Signers[i]
		}
	}
	return nil
}

func cloneInstruction(ix solana.Instruction) (solana.Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction data: %w", err)
	}
	metas := make(solana.AccountMetaSlice, 0, len(ix.Accounts()))
	for _, m := range ix.Accounts() {
		if m == nil {
			continue
		}
		cp := *m
		metas = append(metas, &cp)
	}
	return solana.NewInstruction(ix.ProgramID(), metas, append([]byte(nil), data...)), nil
}
