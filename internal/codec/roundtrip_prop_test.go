package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Round-trip law: decoding a built action returns exactly the builder's
// arguments, for every valid argument combination.

func TestDepositRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("deposit decode inverts build", prop.ForAll(
		func(asset string, amount uint64) bool {
			a, err := BuildDeposit(asset, amount)
			if err != nil {
				return false
			}
			p, err := DecodeDeposit(a.Payload)
			if err != nil {
				return false
			}
			return p.Asset == asset && p.Amount == amount
		},
		gen.Identifier(),
		gen.UInt64Range(1, math.MaxInt64),
	))

	properties.TestingRun(t)
}

func TestBorrowRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("borrow decode inverts build", prop.ForAll(
		func(asset string, amount uint64, stable bool) bool {
			mode := RateModeVariable
			if stable {
				mode = RateModeStable
			}
			a, err := BuildBorrow(asset, amount, mode)
			if err != nil {
				return false
			}
			p, err := DecodeBorrow(a.Payload)
			if err != nil {
				return false
			}
			return p.Asset == asset && p.Amount == amount && p.RateMode == mode
		},
		gen.Identifier(),
		gen.UInt64Range(1, math.MaxInt64),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestSwapRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("swap decode inverts build", prop.ForAll(
		func(asset0, asset1 string, fee uint32, spacing int32, zeroForOne bool, amountIn, minOut uint64) bool {
			if asset0 == asset1 {
				return true // not a valid pool, nothing to check
			}
			key := PoolKey{Asset0: asset0, Asset1: asset1, FeeBps: fee, TickSpacing: spacing}
			a, err := BuildSwap(key, zeroForOne, amountIn, minOut)
			if err != nil {
				return false
			}
			p, err := DecodeSwap(a.Payload)
			if err != nil {
				return false
			}
			return p.Pool == key &&
				p.ZeroForOne == zeroForOne &&
				p.AmountIn == amountIn &&
				p.MinAmountOut == minOut
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.UInt32Range(0, 9999),
		gen.Int32Range(1, 32767),
		gen.Bool(),
		gen.UInt64Range(1, math.MaxInt64),
		gen.UInt64Range(0, math.MaxInt64),
	))

	properties.TestingRun(t)
}

func TestBuildDeterministicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identical arguments encode to identical bytes", prop.ForAll(
		func(asset string, amount uint64) bool {
			a1, err1 := BuildDeposit(asset, amount)
			a2, err2 := BuildDeposit(asset, amount)
			if err1 != nil || err2 != nil {
				return false
			}
			return bytes.Equal(a1.Payload, a2.Payload)
		},
		gen.Identifier(),
		gen.UInt64Range(1, math.MaxInt64),
	))

	properties.TestingRun(t)
}
