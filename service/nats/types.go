package nats

import (
	"time"

	"github.com/brojonat/roundtrip/service/arb"
)

// OpportunityEvent is published to "arb.opportunities.{mother_mint}" when a
// live pipeline selects an opportunity.
type OpportunityEvent struct {
	Source       string `json:"source"`
	TxID         string `json:"tx_id,omitempty"`
	MotherMint   string `json:"mother_mint"`
	MotherSymbol string `json:"mother_symbol"`
	Target       string `json:"target"`
	Mode         string `json:"mode"`

	InAmount    uint64  `json:"in_amount"`
	OutAmount   uint64  `json:"out_amount"`
	GrossProfit int64   `json:"gross_profit"`
	TotalCost   int64   `json:"total_cost"`
	NetProfit   int64   `json:"net_profit"`
	RelayFeeSOL float64 `json:"relay_fee_sol"`
	LatencyMS   int64   `json:"latency_ms"`

	PublishedAt time.Time `json:"published_at"`
}

// ChannelResult is one channel's outcome inside a SubmissionEvent.
type ChannelResult struct {
	Channel   string `json:"channel"`
	Signature string `json:"signature,omitempty"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error,omitempty"`
}

// SubmissionEvent is published to "arb.submissions.{mother_mint}" after a
// submission attempt, successful or not.
type SubmissionEvent struct {
	Source           string          `json:"source"`
	TxID             string          `json:"tx_id,omitempty"`
	MotherMint       string          `json:"mother_mint"`
	MotherSymbol     string          `json:"mother_symbol"`
	Target           string          `json:"target"`
	InAmount         uint64          `json:"in_amount"`
	NetProfit        int64           `json:"net_profit"`
	Status           string          `json:"status"`
	PreviewSignature string          `json:"preview_signature,omitempty"`
	LandedChannel    string          `json:"landed_channel,omitempty"`
	LandedSignature  string          `json:"landed_signature,omitempty"`
	Error            string          `json:"error,omitempty"`
	Channels         []ChannelResult `json:"channels,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// NewOpportunityEvent converts a selected opportunity for publishing.
func NewOpportunityEvent(trig arb.Trigger, opp arb.Opportunity) *OpportunityEvent {
	return &OpportunityEvent{
		Source:       trig.Source,
		TxID:         trig.TxID,
		MotherMint:   trig.Mother.Mint,
		MotherSymbol: trig.Mother.Symbol,
		Target:       opp.Result.Target,
		Mode:         trig.Mode.String(),
		InAmount:     opp.Result.InAmount,
		OutAmount:    opp.Result.OutAmount,
		GrossProfit:  opp.GrossProfit,
		TotalCost:    opp.TotalCost,
		NetProfit:    opp.NetProfit,
		RelayFeeSOL:  opp.RelayFeeSOL,
		LatencyMS:    opp.Result.Latency.Milliseconds(),
		PublishedAt:  time.Now().UTC(),
	}
}

// NewSubmissionEvent converts a submission result for publishing.
func NewSubmissionEvent(trig arb.Trigger, opp arb.Opportunity, report *arb.ExecutionReport, err error) *SubmissionEvent {
	ev := &SubmissionEvent{
		Source:       trig.Source,
		TxID:         trig.TxID,
		MotherMint:   trig.Mother.Mint,
		MotherSymbol: trig.Mother.Symbol,
		Target:       opp.Result.Target,
		InAmount:     opp.Result.InAmount,
		NetProfit:    opp.NetProfit,
		Status:       arb.SubmissionStatus(err),
		PublishedAt:  time.Now().UTC(),
	}
	if report != nil {
		ev.PreviewSignature = report.PreviewSignature
		for _, o := range report.Outcomes {
			cr := ChannelResult{Channel: o.Channel, Signature: o.Signature, Attempts: o.Attempts}
			if o.Err != nil {
				cr.Error = o.Err.Error()
			}
			ev.Channels = append(ev.Channels, cr)
		}
		if landed, ok := report.Landed(); ok {
			ev.LandedChannel = landed.Channel
			ev.LandedSignature = landed.Signature
		}
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
