package query_test

import (
	"context"
	"testing"
	"time"

	"SwapLedger/internal/core"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/query"
	"SwapLedger/internal/store"
	"SwapLedger/internal/testutil"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "alice-principal"
	bob   = "bob-principal"
)

func seeded(t *testing.T) (*store.Store, *core.Engine) {
	t.Helper()
	st := testutil.NewTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eng, err := core.NewEngine(core.DefaultConfig(), core.Deps{
		Store:       st,
		Settlement:  &core.Settlement{Native: testutil.NewFakeLedger(), Bridge: testutil.NewFakeBridge()},
		Logger:      zerolog.Nop(),
		Now:         func() time.Time { return now },
		PersistChan: make(chan ledger.Tx, 64),
	})
	require.NoError(t, err)

	add := func(symbol string, decimals uint8) ledger.Token {
		tok, err := eng.AddToken(ledger.Token{
			Chain: ledger.ChainIC, Symbol: symbol, Decimals: decimals,
			Fee: sdkmath.NewInt(10), LedgerID: "ledger-" + symbol,
		})
		require.NoError(t, err)
		return tok
	}
	icp := add("ICP", 8)
	usdt := add("ckUSDT", 6)

	_, err = eng.Execute(context.Background(), alice, ledger.AddPoolArgs{
		Token0: icp.Address(), Amount0: sdkmath.NewInt(1_000_000_000),
		Token1: usdt.Address(), Amount1: sdkmath.NewInt(50_000_000),
	})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), bob, ledger.SwapArgs{
		PayToken: icp.Address(), PayAmount: sdkmath.NewInt(10_000_000), ReceiveToken: usdt.Address(),
	})
	require.NoError(t, err)
	return st, eng
}

func TestFormatAmount(t *testing.T) {
	a := query.FormatAmount(sdkmath.NewInt(123_456_789), 8)
	assert.Equal(t, "123456789", a.Raw)
	assert.Equal(t, "1.23456789", a.Display)

	assert.Equal(t, "0", query.FormatAmount(sdkmath.Int{}, 6).Display)
	assert.Equal(t, "42", query.FormatAmount(sdkmath.NewInt(42), 0).Display)
}

func TestTokensAndPools(t *testing.T) {
	st, _ := seeded(t)
	qs := query.NewQueryService(st, nil)

	tokens, err := qs.Tokens()
	require.NoError(t, err)
	var addrs []string
	for _, tok := range tokens {
		addrs = append(addrs, tok.Address)
	}
	assert.Contains(t, addrs, "IC.ICP")
	assert.Contains(t, addrs, "IC.ckUSDT")
	assert.Contains(t, addrs, "LP.ICP_ckUSDT")

	pools, err := qs.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	p := pools[0]
	assert.Equal(t, "IC.ICP", p.Token0)
	assert.Equal(t, "IC.ckUSDT", p.Token1)
	assert.Equal(t, "LP.ICP_ckUSDT", p.LPToken)
	assert.Equal(t, "1010000000", p.Balance0.Raw)
	assert.Equal(t, "10.1", p.Balance0.Display)
	assert.NotEqual(t, "0", p.Price)
	assert.Equal(t, uint64(2), p.AsOfTxID)
}

func TestUserBalancesAndRequests(t *testing.T) {
	st, _ := seeded(t)
	qs := query.NewQueryService(st, nil)

	bals, err := qs.UserBalances(alice)
	require.NoError(t, err)
	require.Len(t, bals, 1)
	assert.Equal(t, "100", bals[0].SharePct)
	assert.Equal(t, "1010000000", bals[0].Amount0.Raw)

	none, err := qs.UserBalances("nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	req, err := qs.Request(2, bob)
	require.NoError(t, err)
	assert.Equal(t, ledger.StateSuccess, req.State)

	_, err = qs.Request(2, alice)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = qs.Request(2, "")
	assert.NoError(t, err)
	_, err = qs.Request(99, "")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	claims, err := qs.Claims(bob)
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestVerifyIntegrity(t *testing.T) {
	st, _ := seeded(t)
	qs := query.NewQueryService(st, nil)

	report, err := qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)
	assert.Equal(t, 2, report.TxsChecked)
	assert.Empty(t, report.LPImbalances)

	// corrupt a Tx in place
	require.NoError(t, st.Update(func(b *store.Batch) error {
		tx, _, err := store.Get[ledger.Tx](b, store.Txs, 2)
		if err != nil {
			return err
		}
		tx.UserID = 77
		return b.Put(store.Txs, 2, &tx)
	}))
	report, err = qs.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	assert.Equal(t, uint64(2), report.HashChainBreak)
}
