package arb

import (
	"encoding/json"
	"errors"
	"time"
)

// QuoteMode selects how the aggregator is asked to route a leg.
type QuoteMode int

const (
	// QuoteRegular lets the aggregator use multi-hop routes.
	QuoteRegular QuoteMode = iota
	// QuoteSizeAware restricts routing to direct, shallow routes. Used when a
	// large flow has just moved the pools we want to trade against.
	QuoteSizeAware
)

func (m QuoteMode) String() string {
	switch m {
	case QuoteSizeAware:
		return "size_aware"
	default:
		return "regular"
	}
}

// AmountGrid is a sequence of raw-unit input amounts. It is
// non-decreasing; truncation to raw units can repeat an amount when the
// range is narrower than the step count at the mint's precision.
type AmountGrid []uint64

// TokenMeta describes an asset in the static registry.
type TokenMeta struct {
	Mint     string `yaml:"mint" json:"mint"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

// IsNative reports whether the token is the network's native asset (wrapped SOL).
func (t TokenMeta) IsNative() bool {
	return t.Mint == NativeMint || t.Symbol == "SOL" || t.Symbol == "WSOL"
}

// Leg is one half of a round trip. Route carries the aggregator's raw quote
// payload so the instruction builder can replay it.
type Leg struct {
	InputMint  string          `json:"input_mint"`
	OutputMint string          `json:"output_mint"`
	InAmount   uint64          `json:"in_amount"`
	OutAmount  uint64          `json:"out_amount"`
	Route      json.RawMessage `json:"route,omitempty"`
}

// QuoteResult is one successful round trip: mother -> target -> mother.
type QuoteResult struct {
	InAmount  uint64        `json:"in_amount"`
	OutAmount uint64        `json:"out_amount"`
	Leg1      Leg           `json:"leg1"`
	Leg2      Leg           `json:"leg2"`
	Latency   time.Duration `json:"latency"`
	Target    string        `json:"target"`
}

// Gross returns out minus in as a signed raw amount.
func (r QuoteResult) Gross() int64 {
	return int64(r.OutAmount) - int64(r.InAmount)
}

// Opportunity is a QuoteResult with its cost and profit attached.
type Opportunity struct {
	Result         QuoteResult `json:"result"`
	GrossProfit    int64       `json:"gross_profit"`
	TotalCost      int64       `json:"total_cost"`
	NetProfit      int64       `json:"net_profit"`
	RelayFeeSOL    float64     `json:"relay_fee_sol"`
	MeetsThreshold bool        `json:"meets_threshold"`
}

// WatchEntry is the per-mother policy shared by the poller and the
// big-trade trigger.
type WatchEntry struct {
	Mint              string  `yaml:"mint" json:"mint"`
	From              float64 `yaml:"from" json:"from"`
	To                float64 `yaml:"to" json:"to"`
	Steps             int     `yaml:"steps" json:"steps"`
	MinProfit         float64 `yaml:"min_profit" json:"min_profit"`
	BigTradeThreshold float64 `yaml:"big_trade_threshold" json:"big_trade_threshold"`
	Target            string  `yaml:"target,omitempty" json:"target,omitempty"`
}

// Trigger source identifiers.
const (
	SourcePoll     = "poll"
	SourceBigTrade = "big_trade"
)

// Trigger is one unit of pipeline work.
type Trigger struct {
	Source    string    `json:"source"`
	TxID      string    `json:"tx_id,omitempty"`
	Mother    TokenMeta `json:"mother"`
	Targets   []string  `json:"targets"`
	From      float64   `json:"from"`
	To        float64   `json:"to"`
	Steps     int       `json:"steps"`
	MinProfit float64   `json:"min_profit"`
	Mode      QuoteMode `json:"mode"`
}

// ChannelOutcome is the result of submitting through one channel.
type ChannelOutcome struct {
	Channel   string `json:"channel"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	Err       error  `json:"-"`
}

// OK reports whether the channel accepted the transaction.
func (o ChannelOutcome) OK() bool {
	return o.Err == nil && o.Signature != ""
}

// ExecutionReport is what the pipeline learns from a live submission.
type ExecutionReport struct {
	PreviewSignature string           `json:"preview_signature"`
	Outcomes         []ChannelOutcome `json:"outcomes"`
}

// Landed returns the first channel that accepted the transaction.
func (r *ExecutionReport) Landed() (ChannelOutcome, bool) {
	if r == nil {
		return ChannelOutcome{}, false
	}
	for _, o := range r.Outcomes {
		if o.OK() {
			return o, true
		}
	}
	return ChannelOutcome{}, false
}

// Submission statuses reported to observers and stored in the ledger.
const (
	StatusLanded      = "landed"
	StatusFailed      = "failed"
	StatusBuildFailed = "build_failed"
)

// SubmissionStatus classifies the error returned by an Executor.
func SubmissionStatus(err error) string {
	switch {
	case err == nil:
		return StatusLanded
	case errors.Is(err, ErrBuild):
		return StatusBuildFailed
	default:
		return StatusFailed
	}
}
