package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// Standard configs
	SharesConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 share
	PriceConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 underlying per share
	AssetConfig  = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000} // 0.000001 underlying
)

// BasisPointsDenominator is the fee denominator: 1 bp = 0.01%.
const BasisPointsDenominator = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	if roundingMode == RoundUp && remainder.Sign() != 0 {
		result++
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncation (default for all queue math)
	RoundUp
)

// MulDiv computes a * b / denominator with int128 intermediates.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	num := MultiplyInt128(a, b)
	result := DivideInt128(num, denominator, roundingMode)
	putInt128(num)
	return result
}

// SharesToAsset converts a share quantity to an underlying-asset amount at the
// given share price. Rounds down: dust stays with the vault, never over-reserves.
func SharesToAsset(shares, sharePrice int64) int64 {
	return MulDiv(shares, sharePrice, PriceConfig.Scale, RoundDown)
}

// FeeOf computes a basis-point fee on an amount, rounding down.
func FeeOf(amount int64, feeBps int64) int64 {
	return MulDiv(amount, feeBps, BasisPointsDenominator, RoundDown)
}

// SplitFee divides a collected fee into the admin portion and the burnt
// remainder. The admin portion is computed first so the remainder absorbs
// any rounding dust.
func SplitFee(totalFee, adminRateBps int64) (adminFee, burnt int64) {
	adminFee = FeeOf(totalFee, adminRateBps)
	burnt = totalFee - adminFee
	return adminFee, burnt
}

// ProportionOf computes value * part / whole, the proportional slice used by
// claim accounting. whole must be nonzero.
func ProportionOf(value, part, whole int64) int64 {
	return MulDiv(value, part, whole, RoundDown)
}
