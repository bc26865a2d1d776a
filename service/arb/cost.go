package arb

import "math"

// BaseTxFeeLamports is the network's per-signature fee.
const BaseTxFeeLamports = 5000

// BaseTxFeeSOL is BaseTxFeeLamports expressed in SOL.
const BaseTxFeeSOL = float64(BaseTxFeeLamports) / 1_000_000_000

// RelayFeeMode selects how the relay tip is sized.
type RelayFeeMode int

const (
	// RelayFeeFixed tips a constant FixedSOL.
	RelayFeeFixed RelayFeeMode = iota
	// RelayFeeProfitShare tips a fraction of gross profit.
	RelayFeeProfitShare
)

// FeeModel prices a transaction. It is loaded once and never mutated.
type FeeModel struct {
	ComputeUnits             uint32
	PriorityFeeMicroLamports uint64
	Mode                     RelayFeeMode
	FixedSOL                 float64
	Share                    float64
	ReferencePrice           float64
}

// Compute returns (total cost, relay fee) in SOL for a gross profit in SOL.
// A profit share outside (0, 1] falls back to the fixed tip.
func (f FeeModel) Compute(grossSOL float64) (totalSOL, relaySOL float64) {
	relaySOL = f.FixedSOL
	if f.Mode == RelayFeeProfitShare && f.Share > 0 && f.Share <= 1 {
		relaySOL = math.Max(0, grossSOL*f.Share)
	}
	return BaseTxFeeSOL + relaySOL, relaySOL
}

// ComputeForTrade prices a trade whose gross profit is in the trade asset's
// raw units. Non-native assets are converted to SOL through price (USD per
// SOL) and back; a non-positive price falls back to ReferencePrice. The raw
// result is truncated toward zero.
func (f FeeModel) ComputeForTrade(grossRaw int64, native bool, decimals uint8, price float64) (totalRaw int64, relaySOL float64) {
	if !(price > 0) {
		price = f.ReferencePrice
	}
	scale := math.Pow10(int(decimals))

	grossSOL := float64(grossRaw) / scale
	if !native {
		grossSOL /= price
	}

	totalSOL, relaySOL := f.Compute(grossSOL)
	if native {
		return int64(totalSOL * scale), relaySOL
	}
	return int64(totalSOL * price * scale), relaySOL
}

// PriorityFeeLamports is the compute-budget fee paid on top of the base fee.
func (f FeeModel) PriorityFeeLamports() uint64 {
	return uint64(f.ComputeUnits) * f.PriorityFeeMicroLamports / 1_000_000
}
