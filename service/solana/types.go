package solana

import (
	"time"
)

// EventKind classifies a stream event.
type EventKind string

const (
	// EventTransaction is a confirmed, successful transaction.
	EventTransaction EventKind = "transaction"
	// EventFailedTransaction is a transaction that landed with an error.
	EventFailedTransaction EventKind = "failed_transaction"
	// EventReconnected is emitted after the stream re-established its subscriptions.
	EventReconnected EventKind = "reconnected"
)

// StreamEvent is one item delivered by the ledger stream.
type StreamEvent struct {
	Kind       EventKind
	Signature  string
	Slot       uint64
	Mention    string // watched account whose subscription produced the event
	Tx         *LedgerTransaction
	ReceivedAt time.Time
}

// LedgerTransaction is a parsed transaction. This is our domain model,
// independent of the RPC response format.
type LedgerTransaction struct {
	Signature string
	Slot      uint64
	BlockTime time.Time
	FeePayer  string
	Fee       uint64
	// Changes are the fee payer's balance changes per mint, in UI units.
	// Native lamports are folded into the wrapped SOL mint.
	Changes []BalanceChange
	// Programs are every invoked program id, top-level first, then inner.
	Programs []string
	Err      *string // nil if the transaction succeeded
}

// BalanceChange is the pre/post balance of one mint.
type BalanceChange struct {
	Mint  string
	Pre   float64
	Post  float64
	Delta float64
}

// Change returns the change for mint, if any.
func (t *LedgerTransaction) Change(mint string) (BalanceChange, bool) {
	for _, c := range t.Changes {
		if c.Mint == mint {
			return c, true
		}
	}
	return BalanceChange{}, false
}
