package jupiter

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// QuoteResponse is the aggregator's quote payload. It is replayed verbatim
// to swap-instructions, so unknown fields are kept in RoutePlan steps.
type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`
	ContextSlot          uint64          `json:"contextSlot,omitempty"`
	TimeTaken            float64         `json:"timeTaken,omitempty"`
}

// RoutePlanStep is one hop of a route.
type RoutePlanStep struct {
	SwapInfo json.RawMessage `json:"swapInfo"`
	Percent  int             `json:"percent"`
	Bps      int             `json:"bps,omitempty"`
}

type swapInstructionsRequest struct {
	UserPublicKey            string        `json:"userPublicKey"`
	QuoteResponse            QuoteResponse `json:"quoteResponse"`
	WrapAndUnwrapSol         bool          `json:"wrapAndUnwrapSol"`
	UseSharedAccounts        bool          `json:"useSharedAccounts"`
	DynamicComputeUnitLimit  bool          `json:"dynamicComputeUnitLimit"`
	SkipUserAccountsRPCCalls bool          `json:"skipUserAccountsRpcCalls"`
}

type swapInstructionsResponse struct {
	ComputeBudgetInstructions   []instruction `json:"computeBudgetInstructions"`
	SetupInstructions           []instruction `json:"setupInstructions"`
	SwapInstruction             *instruction  `json:"swapInstruction"`
	CleanupInstruction          *instruction  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string      `json:"addressLookupTableAddresses"`
	Error                       string        `json:"error"`
}

type instruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []accountMeta `json:"accounts"`
	Data      string        `json:"data"`
}

type accountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// SwapInstructions is what the trade builder assembles into a transaction.
// Compute budget instructions are left to the submitter.
type SwapInstructions struct {
	Setup        []solana.Instruction
	Swap         solana.Instruction
	LookupTables []solana.PublicKey
}

// Instructions returns setup followed by the swap.
func (s *SwapInstructions) Instructions() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(s.Setup)+1)
	out = append(out, s.Setup...)
	return append(out, s.Swap)
}
