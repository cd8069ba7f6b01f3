package codec

import (
	"fmt"

	"github.com/roach88/omnibus/internal/canon"
)

// The Build functions are the only producers of action payloads. They
// encode their arguments verbatim: no business rules, no defaults, so
// building then decoding returns exactly the arguments given. Business
// validation happens in Decode, on the consuming side.

// BuildDeposit encodes a lending deposit of amount base units of asset.
func BuildDeposit(asset string, amount uint64) (Action, error) {
	return build(KindDeposit, map[string]any{
		"asset":  asset,
		"amount": amount,
	})
}

// BuildBorrow encodes a borrow of amount base units of asset under the
// given rate mode.
func BuildBorrow(asset string, amount uint64, mode RateMode) (Action, error) {
	return build(KindBorrow, map[string]any{
		"asset":     asset,
		"amount":    amount,
		"rate_mode": int64(mode),
	})
}

// BuildSwap encodes an exact-input swap on the pool identified by key.
// zeroForOne selects the direction: true swaps Asset0 in for Asset1
// out, false the reverse. minAmountOut is the slippage floor on the
// total output credited to the caller; zero disables the floor.
func BuildSwap(key PoolKey, zeroForOne bool, amountIn, minAmountOut uint64) (Action, error) {
	return build(KindSwap, map[string]any{
		"pool":           key.payload(),
		"zero_for_one":   zeroForOne,
		"amount_in":      amountIn,
		"min_amount_out": minAmountOut,
	})
}

func build(kind Kind, payload map[string]any) (Action, error) {
	data, err := canon.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("build %s action: %w", kind, err)
	}
	return Action{Kind: kind, Payload: data}, nil
}

// MustBuildDeposit is like BuildDeposit but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBuildDeposit(asset string, amount uint64) Action {
	a, err := BuildDeposit(asset, amount)
	if err != nil {
		panic(err)
	}
	return a
}

// MustBuildBorrow is like BuildBorrow but panics on error.
func MustBuildBorrow(asset string, amount uint64, mode RateMode) Action {
	a, err := BuildBorrow(asset, amount, mode)
	if err != nil {
		panic(err)
	}
	return a
}

// MustBuildSwap is like BuildSwap but panics on error.
func MustBuildSwap(key PoolKey, zeroForOne bool, amountIn, minAmountOut uint64) Action {
	a, err := BuildSwap(key, zeroForOne, amountIn, minAmountOut)
	if err != nil {
		panic(err)
	}
	return a
}
