package ledger_test

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SwapLedger/internal/ledger"
)

func TestParseTokenRef(t *testing.T) {
	chain, symbol, err := ledger.ParseTokenRef("ic.ICP")
	require.NoError(t, err)
	assert.Equal(t, ledger.ChainIC, chain)
	assert.Equal(t, "ICP", symbol)

	chain, symbol, err = ledger.ParseTokenRef(" ckUSDT ")
	require.NoError(t, err)
	assert.Empty(t, chain)
	assert.Equal(t, "ckUSDT", symbol)

	for _, ref := range []string{"", "ETH.USDC", "SOL."} {
		_, _, err := ledger.ParseTokenRef(ref)
		assert.ErrorIs(t, err, ledger.ErrValidation, ref)
	}
}

func TestToken_Flags(t *testing.T) {
	sol := ledger.Token{Chain: ledger.ChainSOL, Symbol: "SOL", Listed: true}
	assert.True(t, sol.IsNativeSOL())
	assert.True(t, sol.Tradable())
	assert.Equal(t, "SOL.SOL", sol.Address())

	usdc := ledger.Token{Chain: ledger.ChainSOL, Symbol: "USDC", MintAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"}
	assert.False(t, usdc.IsNativeSOL())
	assert.False(t, usdc.Tradable(), "unlisted")

	lp := ledger.Token{Chain: ledger.ChainLP, Symbol: "ICP_ckUSDT", Listed: true}
	assert.False(t, lp.Tradable())

	removed := ledger.Token{Chain: ledger.ChainIC, Symbol: "ICP", Listed: true, Removed: true}
	assert.False(t, removed.Tradable())
}

func TestUser_FeeDiscountExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)
	u := ledger.User{FeeLevel: 40, FeeLevelExpiresAt: &expiry}

	assert.Equal(t, uint8(40), u.FeeDiscount(now))
	assert.Equal(t, uint8(0), u.FeeDiscount(expiry))

	u = ledger.User{FeeLevel: 250}
	assert.Equal(t, uint8(ledger.MaxFeeLevel), u.FeeDiscount(now))
}

func TestUser_ActiveReferrer(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(24 * time.Hour)
	u := ledger.User{ReferredBy: 7, ReferredByExpiresAt: &expiry}

	id, ok := u.ActiveReferrer(now)
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)

	_, ok = u.ActiveReferrer(expiry.Add(time.Second))
	assert.False(t, ok)

	_, ok = ledger.User{}.ActiveReferrer(now)
	assert.False(t, ok)
}

func TestPool_Orientation(t *testing.T) {
	p := ledger.NewPool(1, 2, 30, 0, time.Now())
	p.Balance0 = sdkmath.NewInt(100)
	p.Balance1 = sdkmath.NewInt(500)

	in, out := p.Reserves(2)
	assert.Equal(t, "500", in.String())
	assert.Equal(t, "100", out.String())
	assert.Equal(t, uint64(1), p.Other(2))
	assert.True(t, p.Has(1))
	assert.False(t, p.Has(3))
	assert.Equal(t, ledger.PairKey(1, 2), ledger.PairKey(2, 1))
}

func TestValidateProductNonDecreasing(t *testing.T) {
	before := ledger.NewPool(1, 2, 30, 0, time.Now())
	before.Balance0 = sdkmath.NewInt(1_000)
	before.Balance1 = sdkmath.NewInt(1_000)

	after := before
	after.Balance0 = sdkmath.NewInt(1_100)
	after.Balance1 = sdkmath.NewInt(910)
	assert.NoError(t, ledger.ValidateProductNonDecreasing(before, after))

	after.Balance1 = sdkmath.NewInt(900)
	assert.Error(t, ledger.ValidateProductNonDecreasing(before, after))
}

func TestValidatePool(t *testing.T) {
	p := ledger.NewPool(1, 2, 30, 0, time.Now())
	assert.NoError(t, ledger.ValidatePool(p))

	p.Balance1 = sdkmath.NewInt(-1)
	assert.Error(t, ledger.ValidatePool(p))

	p.Balance1 = sdkmath.Int{}
	assert.Error(t, ledger.ValidatePool(p))
}

func TestValidateLPSupply(t *testing.T) {
	p := ledger.NewPool(1, 2, 30, 0, time.Now())
	p.LPTokenID = 9
	p.LPTotalSupply = sdkmath.NewInt(150)

	entries := []ledger.LPBalance{
		{LPBalanceID: 1, TokenID: 9, Amount: sdkmath.NewInt(100)},
		{LPBalanceID: 2, TokenID: 9, Amount: sdkmath.NewInt(50)},
		{LPBalanceID: 3, TokenID: 10, Amount: sdkmath.NewInt(999)},
	}
	assert.NoError(t, ledger.ValidateLPSupply(p, entries))

	entries[1].Amount = sdkmath.NewInt(49)
	assert.Error(t, ledger.ValidateLPSupply(p, entries))
}

func TestKindOf(t *testing.T) {
	cases := map[error]ledger.ErrorKind{
		ledger.ErrNotFound.Wrap("token"):       ledger.KindValidation,
		ledger.ErrReplay.Wrap("block 12"):      ledger.KindProof,
		ledger.ErrBusy:                         ledger.KindConcurrency,
		ledger.ErrSlippage.Wrapf("%d bps", 51): ledger.KindComputation,
		ledger.ErrSettlement:                   ledger.KindSettlement,
		assert.AnError:                         ledger.KindInternal,
	}
	for err, want := range cases {
		assert.Equal(t, want, ledger.KindOf(err), err.Error())
	}
	assert.Empty(t, ledger.KindOf(nil))
}

func TestRequestState(t *testing.T) {
	assert.False(t, ledger.StateComputing.Committed())
	assert.True(t, ledger.StateTransferring.Committed())
	assert.True(t, ledger.StateFailed.Terminal())
	assert.False(t, ledger.StateFinalizing.Terminal())
	assert.Equal(t, "Finalizing", ledger.StateFinalizing.String())
}

func TestReply_TaggedEncoding(t *testing.T) {
	data, err := ledger.MarshalReply(ledger.FailedReply{RequestID: 4, Error: "slippage", TransferIDs: []uint64{11}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"failed"`)

	r, err := ledger.UnmarshalReply(data)
	require.NoError(t, err)
	transfers, claims := ledger.ReplyRefs(r)
	assert.Equal(t, []uint64{11}, transfers)
	assert.Empty(t, claims)

	r, err = ledger.UnmarshalReply(nil)
	require.NoError(t, err)
	assert.Equal(t, "pending", r.ReplyKind())
}
