package query

import (
	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// BalanceResponse is a user's LP position with the underlying amounts it
// would redeem for at current reserves.
type BalanceResponse struct {
	LPToken  string `json:"lp_token"`
	PoolID   uint64 `json:"pool_id"`
	Balance  Amount `json:"balance"`
	SharePct string `json:"share_pct"`
	Token0   string `json:"token_0"`
	Amount0  Amount `json:"amount_0"`
	Token1   string `json:"token_1"`
	Amount1  Amount `json:"amount_1"`
	AsOfTxID uint64 `json:"as_of_tx_id"`
}

// FormatAmount renders amount in whole-token units.
func FormatAmount(amount sdkmath.Int, decimals uint8) Amount {
	if amount.IsNil() {
		amount = sdkmath.ZeroInt()
	}
	return Amount{
		Raw:     amount.String(),
		Display: decimal.NewFromBigInt(amount.BigInt(), -int32(decimals)).String(),
	}
}

// Price is balance1/balance0 adjusted for decimals, to 8 places.
func Price(p ledger.Pool, t0, t1 ledger.Token) string {
	if !p.Balance0.IsPositive() {
		return "0"
	}
	b0 := decimal.NewFromBigInt(p.Balance0.BigInt(), -int32(t0.Decimals))
	b1 := decimal.NewFromBigInt(p.Balance1.BigInt(), -int32(t1.Decimals))
	return b1.DivRound(b0, 8).String()
}

func sharePct(part, total sdkmath.Int) string {
	if !total.IsPositive() {
		return "0"
	}
	p := decimal.NewFromBigInt(part.BigInt(), 0)
	t := decimal.NewFromBigInt(total.BigInt(), 0)
	return p.Mul(decimal.NewFromInt(100)).DivRound(t, 4).String()
}

func (qs *QueryService) balanceFor(r store.Reader, bal ledger.LPBalance) (BalanceResponse, error) {
	lpTok, err := store.MustToken(r, bal.TokenID)
	if err != nil {
		return BalanceResponse{}, err
	}
	pool, ok, err := store.Get[ledger.Pool](r, store.Pools, lpTok.PoolID)
	if err != nil {
		return BalanceResponse{}, err
	}
	if !ok {
		return BalanceResponse{}, ledger.ErrNotFound.Wrapf("pool %d", lpTok.PoolID)
	}
	t0, err := store.MustToken(r, pool.TokenID0)
	if err != nil {
		return BalanceResponse{}, err
	}
	t1, err := store.MustToken(r, pool.TokenID1)
	if err != nil {
		return BalanceResponse{}, err
	}

	out0, out1 := sdkmath.ZeroInt(), sdkmath.ZeroInt()
	if bal.Amount.IsPositive() && pool.LPTotalSupply.IsPositive() {
		out0, out1, err = amm.RemoveLiquidityAmounts(pool, bal.Amount)
		if err != nil {
			return BalanceResponse{}, err
		}
	}

	return BalanceResponse{
		LPToken:  lpTok.Address(),
		PoolID:   pool.PoolID,
		Balance:  FormatAmount(bal.Amount, lpTok.Decimals),
		SharePct: sharePct(bal.Amount, pool.LPTotalSupply),
		Token0:   t0.Address(),
		Amount0:  FormatAmount(out0, t0.Decimals),
		Token1:   t1.Address(),
		Amount1:  FormatAmount(out1, t1.Decimals),
	}, nil
}
