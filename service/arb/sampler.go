package arb

import (
	"fmt"
	"math"
)

// SampleAmounts builds a geometric grid of raw-unit input amounts between
// from and to (human units, inclusive). amount_i = from * r^i with
// r = (to/from)^(1/(steps-1)); each amount is scaled by 10^decimals and
// truncated toward zero.
//
// A single step returns [from] without computing a ratio.
func SampleAmounts(from, to float64, steps int, decimals uint8) (AmountGrid, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", ErrInvalidRange, steps)
	}
	if !(from > 0) || math.IsInf(from, 0) {
		return nil, fmt.Errorf("%w: from must be positive, got %v", ErrInvalidRange, from)
	}
	if !(to >= from) || math.IsInf(to, 0) {
		return nil, fmt.Errorf("%w: to (%v) must not be below from (%v)", ErrInvalidRange, to, from)
	}

	scale := math.Pow10(int(decimals))
	if to*scale >= math.MaxUint64 {
		return nil, fmt.Errorf("%w: %v overflows raw units at %d decimals", ErrInvalidRange, to, decimals)
	}

	if steps == 1 {
		return AmountGrid{uint64(from * scale)}, nil
	}

	ratio := math.Pow(to/from, 1/float64(steps-1))
	grid := make(AmountGrid, steps)
	for i := range grid {
		grid[i] = uint64(from * math.Pow(ratio, float64(i)) * scale)
	}
	return grid, nil
}

// ToRaw converts a human amount to raw units, truncating toward zero.
func ToRaw(amount float64, decimals uint8) int64 {
	return int64(amount * math.Pow10(int(decimals)))
}

// FromRaw converts raw units to a human amount.
func FromRaw(raw int64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}
