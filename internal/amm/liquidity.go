package amm

import (
	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
)

// AddLiquidityAmounts returns the amounts a deposit actually uses and the
// LP units it mints. The first deposit sets the price and mints
// sqrt(amount0 * amount1). Later deposits follow the pool ratio; the
// excess of the over-supplied side is left for the caller to refund.
func AddLiquidityAmounts(p ledger.Pool, amount0, amount1 sdkmath.Int) (use0, use1, mint sdkmath.Int, err error) {
	if amount0.IsNil() || amount1.IsNil() || !amount0.IsPositive() || !amount1.IsPositive() {
		return use0, use1, mint, ledger.ErrZeroAmount.Wrap("liquidity amounts")
	}

	if p.LPTotalSupply.IsNil() || p.LPTotalSupply.IsZero() {
		prod, err := mulDiv(amount0, amount1, sdkmath.OneInt())
		if err != nil {
			return use0, use1, mint, err
		}
		mint = Sqrt(prod)
		if !mint.IsPositive() {
			return use0, use1, mint, ledger.ErrComputation.Wrap("initial deposit too small")
		}
		return amount0, amount1, mint, nil
	}

	if !p.Balance0.IsPositive() || !p.Balance1.IsPositive() {
		return use0, use1, mint, ledger.ErrZeroReserves
	}

	need1, err := mulDiv(amount0, p.Balance1, p.Balance0)
	if err != nil {
		return use0, use1, mint, err
	}
	if need1.LTE(amount1) {
		use0, use1 = amount0, need1
	} else {
		need0, err := mulDiv(amount1, p.Balance0, p.Balance1)
		if err != nil {
			return use0, use1, mint, err
		}
		use0, use1 = need0, amount1
	}

	mint0, err := mulDiv(use0, p.LPTotalSupply, p.Balance0)
	if err != nil {
		return use0, use1, mint, err
	}
	mint1, err := mulDiv(use1, p.LPTotalSupply, p.Balance1)
	if err != nil {
		return use0, use1, mint, err
	}
	mint = sdkmath.MinInt(mint0, mint1)
	if !mint.IsPositive() || !use0.IsPositive() || !use1.IsPositive() {
		return use0, use1, mint, ledger.ErrComputation.Wrap("deposit too small to mint lp tokens")
	}
	return use0, use1, mint, nil
}

// RemoveLiquidityAmounts returns each side's share of lp units.
func RemoveLiquidityAmounts(p ledger.Pool, lp sdkmath.Int) (out0, out1 sdkmath.Int, err error) {
	if lp.IsNil() || !lp.IsPositive() {
		return out0, out1, ledger.ErrZeroAmount.Wrap("lp amount")
	}
	if p.LPTotalSupply.IsNil() || !p.LPTotalSupply.IsPositive() {
		return out0, out1, ledger.ErrZeroReserves
	}
	if lp.GT(p.LPTotalSupply) {
		return out0, out1, ledger.ErrValidation.Wrapf("lp amount %s exceeds supply %s", lp, p.LPTotalSupply)
	}
	if out0, err = mulDiv(lp, p.Balance0, p.LPTotalSupply); err != nil {
		return out0, out1, err
	}
	if out1, err = mulDiv(lp, p.Balance1, p.LPTotalSupply); err != nil {
		return out0, out1, err
	}
	return out0, out1, nil
}

// ApplyAdd returns p after a deposit of use0/use1 minting mint units.
func ApplyAdd(p ledger.Pool, use0, use1, mint sdkmath.Int) ledger.Pool {
	p.Balance0 = p.Balance0.Add(use0)
	p.Balance1 = p.Balance1.Add(use1)
	p.LPTotalSupply = p.LPTotalSupply.Add(mint)
	return p
}

// ApplyRemove returns p after burning lp units that paid out0/out1.
func ApplyRemove(p ledger.Pool, lp, out0, out1 sdkmath.Int) ledger.Pool {
	p.Balance0 = p.Balance0.Sub(out0)
	p.Balance1 = p.Balance1.Sub(out1)
	p.LPTotalSupply = p.LPTotalSupply.Sub(lp)
	return p
}

// PoolPrice is balance_1 / balance_0, informational.
func PoolPrice(p ledger.Pool) float64 {
	return ratio(p.Balance1, p.Balance0)
}
