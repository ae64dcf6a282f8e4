package store_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"
	"SwapLedger/internal/testutil"

	sdkmath "cosmossdk.io/math"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertToken(t *testing.T, st *store.Store, chain ledger.Chain, symbol string) uint64 {
	t.Helper()
	var id uint64
	require.NoError(t, st.Update(func(b *store.Batch) error {
		var err error
		id, err = store.InsertToken(b, &ledger.Token{Chain: chain, Symbol: symbol, Decimals: 8, Fee: sdkmath.NewInt(10), Listed: true})
		return err
	}))
	return id
}

func TestInsertAssignsSequentialIDs(t *testing.T) {
	st := testutil.NewTestStore(t)

	assert.Equal(t, uint64(1), insertToken(t, st, ledger.ChainIC, "ICP"))
	assert.Equal(t, uint64(2), insertToken(t, st, ledger.ChainIC, "ckUSDT"))
	assert.Equal(t, uint64(2), st.Count(store.Tokens))

	tok, ok, err := store.Get[ledger.Token](st, store.Tokens, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "IC.ckUSDT", tok.Address())

	_, ok, err = store.Get[ledger.Token](st, store.Tokens, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedUpdateLeavesNoTrace(t *testing.T) {
	st := testutil.NewTestStore(t)
	hooked := false
	boom := errors.New("boom")

	err := st.Update(func(b *store.Batch) error {
		if _, err := store.InsertToken(b, &ledger.Token{Chain: ledger.ChainIC, Symbol: "ICP"}); err != nil {
			return err
		}
		b.OnCommit(func() { hooked = true })
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, hooked)
	assert.Equal(t, uint64(0), st.Count(store.Tokens))

	_, err = store.FindToken(st, "IC.ICP")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// The id is reused once a later batch commits.
	assert.Equal(t, uint64(1), insertToken(t, st, ledger.ChainIC, "ICP"))
}

func TestBatchSeesItsOwnWrites(t *testing.T) {
	st := testutil.NewTestStore(t)
	require.NoError(t, st.Update(func(b *store.Batch) error {
		id, err := store.InsertToken(b, &ledger.Token{Chain: ledger.ChainSOL, Symbol: "SOL"})
		require.NoError(t, err)
		tok, err := store.MustToken(b, id)
		require.NoError(t, err)
		assert.Equal(t, "SOL", tok.Symbol)

		_, err = store.InsertToken(b, &ledger.Token{Chain: ledger.ChainSOL, Symbol: "SOL"})
		assert.ErrorIs(t, err, ledger.ErrValidation)
		return nil
	}))
}

func TestFindTokenResolvesBareSymbols(t *testing.T) {
	st := testutil.NewTestStore(t)
	insertToken(t, st, ledger.ChainIC, "ICP")
	insertToken(t, st, ledger.ChainIC, "USDC")
	insertToken(t, st, ledger.ChainSOL, "USDC")

	tok, err := store.FindToken(st, "ICP")
	require.NoError(t, err)
	assert.Equal(t, ledger.ChainIC, tok.Chain)

	_, err = store.FindToken(st, "USDC")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	tok, err = store.FindToken(st, "SOL.USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tok.TokenID)
}

func TestClaimIndexRejectsTakenKey(t *testing.T) {
	st := testutil.NewTestStore(t)
	require.NoError(t, st.Update(func(b *store.Batch) error {
		return b.ClaimIndex(store.ByProof, "IC.ICP:42", 1)
	}))
	err := st.Update(func(b *store.Batch) error {
		return b.ClaimIndex(store.ByProof, "IC.ICP:42", 2)
	})
	assert.ErrorIs(t, err, store.ErrExists)

	id, ok, err := store.Lookup(st, store.ByProof, "IC.ICP:42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), id)
}

func TestPutRequiresAssignedID(t *testing.T) {
	st := testutil.NewTestStore(t)
	err := st.Update(func(b *store.Batch) error {
		return b.Put(store.Tokens, 5, ledger.Token{})
	})
	assert.Error(t, err)
}

func TestRangeAndScanReverse(t *testing.T) {
	st := testutil.NewTestStore(t)
	for _, sym := range []string{"A", "B", "C", "D"} {
		insertToken(t, st, ledger.ChainIC, sym)
	}

	page, err := store.Range[ledger.Token](st, store.Tokens, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0].Symbol)
	assert.Equal(t, "C", page[1].Symbol)

	var newest []string
	require.NoError(t, store.ScanReverse(st, store.Tokens, func(_ uint64, tok ledger.Token) (bool, error) {
		newest = append(newest, tok.Symbol)
		return len(newest) < 3, nil
	}))
	assert.Equal(t, []string{"D", "C", "B"}, newest)
}

func TestArchiveRequiresMaintenance(t *testing.T) {
	st := testutil.NewTestStore(t)
	insertToken(t, st, ledger.ChainIC, "ICP")
	insertToken(t, st, ledger.ChainIC, "ckBTC")

	_, err := st.Archive(store.Tokens)
	require.ErrorIs(t, err, ledger.ErrValidation)

	require.NoError(t, st.SetMaintenance(true))
	n, err := st.Archive(store.Tokens)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Idempotent.
	n, err = st.Archive(store.Tokens)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	archived, err := store.RangeArchive[ledger.Token](st, store.Tokens, 1, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 2)
}

func TestStateSurvivesReopen(t *testing.T) {
	fs := vfs.NewMem()
	opts := store.Options{FS: fs, Logger: zerolog.Nop()}

	st, err := store.Open("ledger", opts)
	require.NoError(t, err)
	insertToken(t, st, ledger.ChainIC, "ICP")
	require.NoError(t, st.SetMaintenance(true))
	require.NoError(t, st.Close())

	st, err = store.Open("ledger", opts)
	require.NoError(t, err)
	defer st.Close()
	assert.True(t, st.Maintenance())
	assert.Equal(t, uint64(2), insertToken(t, st, ledger.ChainIC, "ckETH"))
}

func TestRecordSolanaDepositOncePerSignature(t *testing.T) {
	st := testutil.NewTestStore(t)
	d := ledger.SolanaDeposit{Signature: "sig-1", Sender: "a", Receiver: "b", Amount: sdkmath.NewInt(5), ObservedAt: time.Now().UTC()}

	created, err := st.RecordSolanaDeposit(d)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.RecordSolanaDeposit(d)
	require.NoError(t, err)
	assert.False(t, created)

	got, ok, err := st.SolanaDeposit("sig-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), got.DepositID)
}

func TestCheckpointIsReadable(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "ledger"), store.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer st.Close()
	insertToken(t, st, ledger.ChainIC, "ICP")

	cp := filepath.Join(dir, "cp-1")
	require.NoError(t, st.Checkpoint(cp))

	copyStore, err := store.Open(cp, store.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer copyStore.Close()
	tok, err := store.FindToken(copyStore, "ICP")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tok.TokenID)
}
