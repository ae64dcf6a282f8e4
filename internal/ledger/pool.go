package ledger

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Pool is a two-asset constant-product market.
type Pool struct {
	PoolID         uint64      `json:"pool_id"`
	TokenID0       uint64      `json:"token_id_0"`
	TokenID1       uint64      `json:"token_id_1"`
	Balance0       sdkmath.Int `json:"balance_0"`
	Balance1       sdkmath.Int `json:"balance_1"`
	LPFeeBps       uint16      `json:"lp_fee_bps"`
	ProtocolFeeBps uint16      `json:"protocol_fee_bps"`

	// Cumulative LP fee retained in reserves, per side.
	LPFee0 sdkmath.Int `json:"lp_fee_0"`
	LPFee1 sdkmath.Int `json:"lp_fee_1"`
	// Protocol fee held outside reserves, per side.
	ProtocolFee0 sdkmath.Int `json:"protocol_fee_0"`
	ProtocolFee1 sdkmath.Int `json:"protocol_fee_1"`

	LPTokenID     uint64      `json:"lp_token_id"`
	LPTotalSupply sdkmath.Int `json:"lp_total_supply"`

	// Rolling 24h window, quoted in token_1 units.
	RollingVolume sdkmath.Int `json:"rolling_24h_volume"`
	RollingLPFee  sdkmath.Int `json:"rolling_24h_lp_fee"`
	RollingSwaps  uint64      `json:"rolling_24h_num_swaps"`
	RollingAPY    float64     `json:"rolling_24h_apy"`

	CreatedAt time.Time `json:"created_at"`
}

func (p *Pool) SetID(id uint64) { p.PoolID = id }

// NewPool returns a pool with every amount initialised to zero.
func NewPool(token0, token1 uint64, lpFeeBps, protocolFeeBps uint16, now time.Time) Pool {
	zero := sdkmath.ZeroInt()
	return Pool{
		TokenID0:       token0,
		TokenID1:       token1,
		Balance0:       zero,
		Balance1:       zero,
		LPFeeBps:       lpFeeBps,
		ProtocolFeeBps: protocolFeeBps,
		LPFee0:         zero,
		LPFee1:         zero,
		ProtocolFee0:   zero,
		ProtocolFee1:   zero,
		LPTotalSupply:  zero,
		RollingVolume:  zero,
		RollingLPFee:   zero,
		CreatedAt:      now,
	}
}

func (p Pool) Has(tokenID uint64) bool {
	return p.TokenID0 == tokenID || p.TokenID1 == tokenID
}

// Other returns the opposite side of the pair.
func (p Pool) Other(tokenID uint64) uint64 {
	if p.TokenID0 == tokenID {
		return p.TokenID1
	}
	return p.TokenID0
}

// Reserves returns (reserve_in, reserve_out) when paying tokenIn.
func (p Pool) Reserves(tokenIn uint64) (sdkmath.Int, sdkmath.Int) {
	if tokenIn == p.TokenID0 {
		return p.Balance0, p.Balance1
	}
	return p.Balance1, p.Balance0
}

// PairKey is the orientation-independent index key for a token pair.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%020d:%020d", a, b)
}

// LPBalance is one entry of the LP-token ledger.
type LPBalance struct {
	LPBalanceID uint64      `json:"lp_balance_id"`
	UserID      uint64      `json:"user_id"`
	TokenID     uint64      `json:"token_id"`
	Amount      sdkmath.Int `json:"amount"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (b *LPBalance) SetID(id uint64) { b.LPBalanceID = id }

// LPKey is the (user, lp token) index key.
func LPKey(userID, lpTokenID uint64) string {
	return fmt.Sprintf("%020d:%020d", userID, lpTokenID)
}
