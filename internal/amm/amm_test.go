package amm_test

import (
	"math/big"
	"testing"
	"time"

	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(id, t0, t1 uint64, b0, b1 int64, lpBps, protoBps uint16) ledger.Pool {
	p := ledger.NewPool(t0, t1, lpBps, protoBps, time.Unix(0, 0))
	p.PoolID = id
	p.Balance0 = sdkmath.NewInt(b0)
	p.Balance1 = sdkmath.NewInt(b1)
	p.LPTotalSupply = amm.Sqrt(p.Balance0.Mul(p.Balance1))
	return p
}

func TestSwapAmountReferenceExample(t *testing.T) {
	q, err := amm.SwapAmount(sdkmath.NewInt(1_000_000), sdkmath.NewInt(2_000_000), sdkmath.NewInt(10_000), 30, 0)
	require.NoError(t, err)

	assert.Equal(t, "9970", q.PayAfterLPFee.String())
	assert.Equal(t, "30", q.LPFee.String())
	assert.Equal(t, "19743", q.GrossReceive.String())
	assert.Equal(t, "19743", q.Receive.String())
	assert.True(t, q.ProtocolFee.IsZero())
}

func TestSwapAmountSplitsProtocolFee(t *testing.T) {
	q, err := amm.SwapAmount(sdkmath.NewInt(1_000_000), sdkmath.NewInt(2_000_000), sdkmath.NewInt(10_000), 20, 10)
	require.NoError(t, err)

	assert.Equal(t, "19762", q.GrossReceive.String())
	assert.Equal(t, "19", q.ProtocolFee.String())
	assert.Equal(t, "19743", q.Receive.String())
}

func TestSwapAmountRejectsZero(t *testing.T) {
	_, err := amm.SwapAmount(sdkmath.NewInt(1_000), sdkmath.NewInt(1_000), sdkmath.ZeroInt(), 30, 0)
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)

	_, err = amm.SwapAmount(sdkmath.ZeroInt(), sdkmath.NewInt(1_000), sdkmath.NewInt(10), 30, 0)
	assert.ErrorIs(t, err, ledger.ErrZeroReserves)

	_, err = amm.SwapAmount(sdkmath.NewInt(1_000_000_000), sdkmath.NewInt(1), sdkmath.NewInt(1), 30, 0)
	assert.ErrorIs(t, err, ledger.ErrComputation)
}

func TestSimulateKeepsProductNonDecreasing(t *testing.T) {
	p := pool(1, 1, 2, 1_000_000, 2_000_000, 30, 10)
	for i := 0; i < 50; i++ {
		pay, recv := uint64(1), uint64(2)
		if i%2 == 1 {
			pay, recv = 2, 1
		}
		res, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: pay, ReceiveTokenID: recv}}, sdkmath.NewInt(int64(7_000+i*131)), 0)
		require.NoError(t, err)
		next := res.Pools[0]
		require.NoError(t, ledger.ValidateProductNonDecreasing(p, next))
		p = next
	}
	assert.True(t, p.ProtocolFee0.IsPositive())
	assert.True(t, p.ProtocolFee1.IsPositive())
	assert.True(t, p.LPFee0.IsPositive())
}

func TestSimulateAppliesReservesAndFees(t *testing.T) {
	p := pool(7, 1, 2, 1_000_000, 2_000_000, 30, 0)
	res, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: 1, ReceiveTokenID: 2}}, sdkmath.NewInt(10_000), 0)
	require.NoError(t, err)

	require.Len(t, res.Calcs, 1)
	assert.Equal(t, uint64(7), res.Calcs[0].PoolID)
	assert.Equal(t, "1010000", res.Pools[0].Balance0.String())
	assert.Equal(t, "1980257", res.Pools[0].Balance1.String())
	assert.Equal(t, "30", res.Pools[0].LPFee0.String())
	assert.Equal(t, "19743", res.ReceiveAmount.String())
	assert.Equal(t, "2.000000000000000000", res.MidPrice.String())
	assert.True(t, res.Slippage.IsPositive())
	assert.True(t, res.Slippage.LT(amm.DefaultMaxSlippage))

	// input pool is untouched
	assert.Equal(t, "1000000", p.Balance0.String())
}

func TestFeeLevelDiscountsProtocolFee(t *testing.T) {
	assert.Equal(t, uint16(5), amm.EffectiveProtocolFee(10, 50))
	assert.Equal(t, uint16(10), amm.EffectiveProtocolFee(10, 0))
	assert.Equal(t, uint16(0), amm.EffectiveProtocolFee(10, 100))

	p := pool(1, 1, 2, 1_000_000, 2_000_000, 20, 10)
	full, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: 1, ReceiveTokenID: 2}}, sdkmath.NewInt(10_000), 0)
	require.NoError(t, err)
	waived, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: 1, ReceiveTokenID: 2}}, sdkmath.NewInt(10_000), 100)
	require.NoError(t, err)
	assert.True(t, waived.ReceiveAmount.GT(full.ReceiveAmount))
}

func TestRouteDirectAndViaHub(t *testing.T) {
	const hub = 3
	pools := map[string]ledger.Pool{
		ledger.PairKey(1, 2): pool(1, 1, 2, 1_000_000, 1_000_000, 30, 0),
		ledger.PairKey(4, 3): pool(2, 4, 3, 5_000_000, 1_000_000, 30, 0),
		ledger.PairKey(3, 5): pool(3, 3, 5, 1_000_000, 2_000_000, 30, 0),
	}
	find := func(a, b uint64) (ledger.Pool, bool, error) {
		p, ok := pools[ledger.PairKey(a, b)]
		return p, ok, nil
	}

	hops, err := amm.Route(find, 2, 1, hub)
	require.NoError(t, err)
	require.Len(t, hops, 1)
	assert.Equal(t, uint64(2), hops[0].PayTokenID)

	hops, err = amm.Route(find, 4, 5, hub)
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, []uint64{2, 3}, amm.PoolIDs(hops))
	assert.Equal(t, uint64(hub), hops[0].ReceiveTokenID)
	assert.Equal(t, uint64(hub), hops[1].PayTokenID)

	res, err := amm.Simulate(hops, sdkmath.NewInt(10_000), 0)
	require.NoError(t, err)
	require.Len(t, res.Calcs, 2)
	assert.True(t, res.Calcs[1].PayAmount.Equal(res.Calcs[0].ReceiveAmount))
	assert.True(t, res.ReceiveAmount.Equal(res.Calcs[1].ReceiveAmount))
	assert.Equal(t, "0.400000000000000000", res.MidPrice.String())

	_, err = amm.Route(find, 1, 5, hub)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = amm.Route(find, 1, 1, hub)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestCheckSlippage(t *testing.T) {
	p := pool(1, 1, 2, 1_000_000, 2_000_000, 30, 0)

	small, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: 1, ReceiveTokenID: 2}}, sdkmath.NewInt(10_000), 0)
	require.NoError(t, err)
	assert.NoError(t, amm.CheckSlippage(small, sdkmath.LegacyDec{}, nil))

	large, err := amm.Simulate([]amm.Hop{{Pool: p, PayTokenID: 1, ReceiveTokenID: 2}}, sdkmath.NewInt(100_000), 0)
	require.NoError(t, err)
	assert.ErrorIs(t, amm.CheckSlippage(large, sdkmath.LegacyDec{}, nil), ledger.ErrSlippage)
	assert.NoError(t, amm.CheckSlippage(large, sdkmath.LegacyNewDecWithPrec(20, 2), nil))

	want := sdkmath.NewInt(25_000)
	assert.ErrorIs(t, amm.CheckSlippage(small, sdkmath.LegacyDec{}, &want), ledger.ErrSlippage)
	want = sdkmath.NewInt(20_000)
	assert.NoError(t, amm.CheckSlippage(small, sdkmath.LegacyDec{}, &want))

	assert.ErrorIs(t, amm.CheckSlippage(small, sdkmath.LegacyNewDec(2), nil), ledger.ErrValidation)
}

func TestAddRemoveLiquidityRoundTrip(t *testing.T) {
	p := ledger.NewPool(1, 2, 30, 0, time.Unix(0, 0))

	use0, use1, mint, err := amm.AddLiquidityAmounts(p, sdkmath.NewInt(1_000_000), sdkmath.NewInt(4_000_000))
	require.NoError(t, err)
	assert.Equal(t, "2000000", mint.String())
	p = amm.ApplyAdd(p, use0, use1, mint)
	founder := mint

	use0, use1, mint, err = amm.AddLiquidityAmounts(p, sdkmath.NewInt(1_000), sdkmath.NewInt(10_000))
	require.NoError(t, err)
	assert.Equal(t, "1000", use0.String())
	assert.Equal(t, "4000", use1.String())
	assert.Equal(t, "2000", mint.String())
	p = amm.ApplyAdd(p, use0, use1, mint)

	out0, out1, err := amm.RemoveLiquidityAmounts(p, mint)
	require.NoError(t, err)
	assert.Equal(t, "1000", out0.String())
	assert.Equal(t, "4000", out1.String())
	p = amm.ApplyRemove(p, mint, out0, out1)

	entries := []ledger.LPBalance{{TokenID: p.LPTokenID, Amount: founder}}
	require.NoError(t, ledger.ValidateLPSupply(p, entries))

	// full removal drains the pool
	out0, out1, err = amm.RemoveLiquidityAmounts(p, founder)
	require.NoError(t, err)
	assert.True(t, out0.Equal(p.Balance0))
	assert.True(t, out1.Equal(p.Balance1))
	p = amm.ApplyRemove(p, founder, out0, out1)
	assert.True(t, p.Balance0.IsZero())
	assert.True(t, p.LPTotalSupply.IsZero())
}

func TestLiquidityRejectsBadInput(t *testing.T) {
	p := pool(1, 1, 2, 1_000_000, 1_000_000, 30, 0)

	_, _, _, err := amm.AddLiquidityAmounts(p, sdkmath.ZeroInt(), sdkmath.NewInt(5))
	assert.ErrorIs(t, err, ledger.ErrZeroAmount)

	_, _, err = amm.RemoveLiquidityAmounts(p, p.LPTotalSupply.AddRaw(1))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, _, err = amm.RemoveLiquidityAmounts(ledger.NewPool(1, 2, 30, 0, time.Unix(0, 0)), sdkmath.NewInt(1))
	assert.ErrorIs(t, err, ledger.ErrZeroReserves)
}

func TestMulDivOverflow(t *testing.T) {
	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))
	_, err := amm.SwapAmount(huge, huge, huge, 30, 0)
	assert.ErrorIs(t, err, ledger.ErrOverflow)
}
