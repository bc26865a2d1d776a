package execution

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/roundtrip/service/arb"
	"github.com/brojonat/roundtrip/service/jupiter"
)

// InstructionBuilder turns a pair of legs into swap instructions.
type InstructionBuilder interface {
	BuildSwap(ctx context.Context, leg1, leg2 arb.Leg, minOutRaw uint64) (*jupiter.SwapInstructions, error)
}

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Payer      solana.PrivateKey
	RetryCount int
}

// Builder assembles submission plans.
type Builder struct {
	cfg    BuilderConfig
	swaps  InstructionBuilder
	nonces NonceSource
	tables LookupFetcher
}

// NewBuilder creates a builder.
func NewBuilder(cfg BuilderConfig, swaps InstructionBuilder, nonces NonceSource, tables LookupFetcher) *Builder {
	return &Builder{cfg: cfg, swaps: swaps, nonces: nonces, tables: tables}
}

// Build produces a signed-once preview and the plan to submit it. Failures
// are *arb.BuildError and nothing has been sent.
func (b *Builder) Build(ctx context.Context, opp arb.Opportunity, minOutRaw uint64, tip TipParams) (*SubmissionPlan, error) {
	nonce, ok := b.nonces.Current()
	if !ok {
		return nil, &arb.BuildError{Stage: "nonce", Err: ErrNonceUnavailable}
	}

	swap, err := b.swaps.BuildSwap(ctx, opp.Result.Leg1, opp.Result.Leg2, minOutRaw)
	if err != nil {
		return nil, &arb.BuildError{Stage: "instructions", Err: err}
	}

	var tables map[solana.PublicKey]solana.PublicKeySlice
	if len(swap.LookupTables) > 0 {
		tables, err = b.tables.Fetch(ctx, swap.LookupTables)
		if err != nil {
			return nil, &arb.BuildError{Stage: "lookup_tables", Err: err}
		}
	}

	plan := &SubmissionPlan{
		Payer:        b.cfg.Payer.PublicKey(),
		Instructions: swap.Instructions(),
		Nonce:        *nonce,
		Signers:      []solana.PrivateKey{b.cfg.Payer},
		LookupTables: tables,
		Tip:          tip,
		RetryCount:   b.cfg.RetryCount,
	}

	preview, err := plan.Transaction(solana.PublicKey{})
	if err != nil {
		return nil, &arb.BuildError{Stage: "sign", Err: err}
	}
	if len(preview.Signatures) == 0 {
		return nil, &arb.BuildError{Stage: "sign", Err: fmt.Errorf("preview transaction has no signature")}
	}
	plan.PreviewSignature = preview.Signatures[0]
	return plan, nil
}
