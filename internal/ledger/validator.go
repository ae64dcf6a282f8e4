package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// ValidatePool checks that reserves and LP supply are non-negative.
func ValidatePool(p Pool) error {
	for name, v := range map[string]sdkmath.Int{
		"balance_0":       p.Balance0,
		"balance_1":       p.Balance1,
		"lp_total_supply": p.LPTotalSupply,
	} {
		if v.IsNil() {
			return fmt.Errorf("pool %d: %s unset", p.PoolID, name)
		}
		if v.IsNegative() {
			return fmt.Errorf("pool %d: %s is negative: %s", p.PoolID, name, v)
		}
	}
	return nil
}

// ValidateProductNonDecreasing checks reserve0*reserve1 did not shrink
// across a swap.
func ValidateProductNonDecreasing(before, after Pool) error {
	kBefore := before.Balance0.BigInt()
	kBefore.Mul(kBefore, before.Balance1.BigInt())
	kAfter := after.Balance0.BigInt()
	kAfter.Mul(kAfter, after.Balance1.BigInt())
	if kAfter.Cmp(kBefore) < 0 {
		return fmt.Errorf("pool %d: reserve product decreased from %s to %s", before.PoolID, kBefore, kAfter)
	}
	return nil
}

// ValidateLPSupply checks that the LP ledger entries for a pool sum to its
// recorded total supply.
func ValidateLPSupply(p Pool, entries []LPBalance) error {
	sum := sdkmath.ZeroInt()
	for _, e := range entries {
		if e.TokenID != p.LPTokenID {
			continue
		}
		if e.Amount.IsNegative() {
			return fmt.Errorf("lp balance %d is negative: %s", e.LPBalanceID, e.Amount)
		}
		sum = sum.Add(e.Amount)
	}
	if !sum.Equal(p.LPTotalSupply) {
		return fmt.Errorf("pool %d: lp ledger sum %s != total supply %s", p.PoolID, sum, p.LPTotalSupply)
	}
	return nil
}
