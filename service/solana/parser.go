package solana

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// WrappedSOLMint is the mint native lamport changes are reported under.
var WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

const lamportsPerSOL = 1e9

// ErrMissingMeta is returned when a transaction result carries no status meta.
var ErrMissingMeta = errors.New("transaction has no meta")

// ParseTransaction converts a GetTransaction result into a LedgerTransaction.
// Balance changes are those of the fee payer. Native lamports are counted
// with the fee added back, so a pure fee spend is not a change.
func ParseTransaction(signature solana.Signature, result *rpc.GetTransactionResult) (*LedgerTransaction, error) {
	if result == nil || result.Transaction == nil {
		return nil, fmt.Errorf("transaction %s not available", signature)
	}
	if result.Meta == nil {
		return nil, ErrMissingMeta
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	keys := tx.Message.AccountKeys
	if len(keys) == 0 {
		return nil, fmt.Errorf("transaction %s has no account keys", signature)
	}
	meta := result.Meta
	payer := keys[0]

	ltx := &LedgerTransaction{
		Signature: signature.String(),
		Slot:      result.Slot,
		FeePayer:  payer.String(),
		Fee:       meta.Fee,
		Programs:  invokedPrograms(tx, meta),
	}
	if result.BlockTime != nil {
		ltx.BlockTime = result.BlockTime.Time()
	}
	if meta.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", meta.Err)
		ltx.Err = &errMsg
	}

	ltx.Changes = balanceChanges(payer, meta)
	return ltx, nil
}

// invokedPrograms lists every program the transaction ran, top-level
// instructions first, then those reached through CPI. Inner instructions may
// index accounts loaded from lookup tables, which follow the static keys.
func invokedPrograms(tx *solana.Transaction, meta *rpc.TransactionMeta) []string {
	keys := make(solana.PublicKeySlice, 0, len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)

	seen := make(map[solana.PublicKey]struct{})
	var out []string
	add := func(idx int) {
		if idx >= len(keys) {
			return
		}
		id := keys[idx]
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}

	for _, ix := range tx.Message.Instructions {
		add(int(ix.ProgramIDIndex))
	}
	for _, inner := range meta.InnerInstructions {
		for _, ix := range inner.Instructions {
			add(int(ix.ProgramIDIndex))
		}
	}
	return out
}

type prePost struct {
	pre, post float64
}

func balanceChanges(owner solana.PublicKey, meta *rpc.TransactionMeta) []BalanceChange {
	byMint := make(map[string]*prePost)
	var order []string
	entry := func(mint string) *prePost {
		pp, ok := byMint[mint]
		if !ok {
			pp = &prePost{}
			byMint[mint] = pp
			order = append(order, mint)
		}
		return pp
	}

	for _, b := range meta.PreTokenBalances {
		if b.Owner == nil || !b.Owner.Equals(owner) {
			continue
		}
		entry(b.Mint.String()).pre += uiAmount(b.UiTokenAmount)
	}
	for _, b := range meta.PostTokenBalances {
		if b.Owner == nil || !b.Owner.Equals(owner) {
			continue
		}
		entry(b.Mint.String()).post += uiAmount(b.UiTokenAmount)
	}

	if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
		pre := float64(meta.PreBalances[0]) / lamportsPerSOL
		post := float64(meta.PostBalances[0]+meta.Fee) / lamportsPerSOL
		if pre != post {
			pp := entry(WrappedSOLMint.String())
			pp.pre += pre
			pp.post += post
		}
	}

	out := make([]BalanceChange, 0, len(order))
	for _, mint := range order {
		pp := byMint[mint]
		delta := pp.post - pp.pre
		if delta == 0 {
			continue
		}
		out = append(out, BalanceChange{Mint: mint, Pre: pp.pre, Post: pp.post, Delta: delta})
	}
	return out
}

func uiAmount(a *rpc.UiTokenAmount) float64 {
	if a == nil {
		return 0
	}
	raw, err := strconv.ParseFloat(a.Amount, 64)
	if err != nil {
		return 0
	}
	return raw / math.Pow10(int(a.Decimals))
}
