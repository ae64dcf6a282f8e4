package amm

import (
	"math/big"

	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10_000

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// mulDiv computes a*b/c with floor rounding and a 256-bit bound on the
// intermediate product.
func mulDiv(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.Int{}, ledger.ErrComputation.Wrap("division by zero")
	}
	prod := new(big.Int).Mul(a.BigInt(), b.BigInt())
	if prod.Cmp(maxUint256) > 0 {
		return sdkmath.Int{}, ledger.ErrOverflow.Wrapf("%s * %s", a, b)
	}
	return sdkmath.NewIntFromBigInt(prod.Quo(prod, c.BigInt())), nil
}

// bpsOf returns amount * bps / 10_000.
func bpsOf(amount sdkmath.Int, bps uint16) (sdkmath.Int, error) {
	return mulDiv(amount, sdkmath.NewInt(int64(bps)), sdkmath.NewInt(BpsDenominator))
}

// Sqrt is the integer square root, floor rounded.
func Sqrt(x sdkmath.Int) sdkmath.Int {
	if !x.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(x.BigInt()))
}

// ratio returns num/den as a float for informational fields only.
func ratio(num, den sdkmath.Int) float64 {
	if den.IsZero() {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(num.BigInt(), den.BigInt()).Float64()
	return f
}
