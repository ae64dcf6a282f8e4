package persistence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/persistence"
	"SwapLedger/internal/testutil"
	"SwapLedger/migrations"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTransfers map[uint64]ledger.Transfer

func (m memTransfers) Transfers(ids []uint64) ([]ledger.Transfer, error) {
	var out []ledger.Transfer
	for _, id := range ids {
		if t, ok := m[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type memTxs []ledger.Tx

func (m memTxs) TxsFrom(from uint64, limit int) ([]ledger.Tx, error) {
	var out []ledger.Tx
	for _, tx := range m {
		if tx.TxID >= from && len(out) < limit {
			out = append(out, tx)
		}
	}
	return out, nil
}

func sampleTx(id uint64, transferIDs ...uint64) ledger.Tx {
	ts := time.Date(2026, 3, 1, 12, 0, int(id), 0, time.UTC)
	return ledger.Tx{
		TxID:      id,
		RequestID: id,
		UserID:    1,
		Kind:      ledger.OpSwap,
		Status:    ledger.TxSuccess,
		Reply: ledger.SwapReply{
			TxID: id, RequestID: id, Status: ledger.TxSuccess,
			PayAmount: sdkmath.NewInt(10), ReceiveAmount: sdkmath.NewInt(19),
			TransferIDs: transferIDs, Ts: ts,
		},
		PrevHash: "prev",
		Hash:     "hash-" + string(rune('a'+id)),
		Ts:       ts,
	}
}

func TestAuditWorkerWritesAndBackfills(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	log := zerolog.Nop()
	require.NoError(t, persistence.NewMigrator(db, migrations.FS, log).Up(ctx))

	transfers := memTransfers{
		1: {TransferID: 1, RequestID: 1, Direction: ledger.Inbound, TokenID: 1, Amount: sdkmath.NewInt(10), ChainRef: "block:1", Party: "alice"},
		2: {TransferID: 2, RequestID: 1, Direction: ledger.Outbound, TokenID: 2, Amount: sdkmath.NewInt(19), ChainRef: "block:2", Party: "alice"},
	}
	in := make(chan ledger.Tx, 4)
	w := persistence.NewAuditWorker(db, in, transfers, 10, 20*time.Millisecond,
		observability.NewMetrics(prometheus.NewRegistry()), log)

	in <- sampleTx(1, 1, 2)
	close(in)
	require.NoError(t, w.Run(ctx))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit.transfers WHERE tx_id = 1`).Scan(&n))
	assert.Equal(t, 2, n)

	mark := persistence.NewAuditWatermark(db)
	last, err := mark.LastTxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)

	written, err := w.Backfill(ctx, memTxs{sampleTx(1), sampleTx(2), sampleTx(3)}, mark)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	last, err = mark.LastTxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

// growingTxs is a store whose Txs appear after the worker has started.
type growingTxs struct {
	mu  sync.Mutex
	txs memTxs
}

func (g *growingTxs) add(txs ...ledger.Tx) {
	g.mu.Lock()
	g.txs = append(g.txs, txs...)
	g.mu.Unlock()
}

func (g *growingTxs) TxsFrom(from uint64, limit int) ([]ledger.Tx, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.txs.TxsFrom(from, limit)
}

func TestAuditWorkerFillsSkippedTx(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zerolog.Nop()
	require.NoError(t, persistence.NewMigrator(db, migrations.FS, log).Up(ctx))

	in := make(chan ledger.Tx, 4)
	w := persistence.NewAuditWorker(db, in, memTransfers{}, 10, 20*time.Millisecond,
		observability.NewMetrics(prometheus.NewRegistry()), log)
	mark := persistence.NewAuditWatermark(db)

	src := &growingTxs{txs: memTxs{sampleTx(1)}}
	written, err := w.Backfill(ctx, src, mark)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// tx 2 was committed but never delivered; tx 3 arrives live
	src.add(sampleTx(2), sampleTx(3))
	in <- sampleTx(3)

	assert.Eventually(t, func() bool { return w.Watermark() == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM audit.txs`).Scan(&n))
	assert.Equal(t, 3, n)
	last, err := mark.LastTxID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)
}

func TestNewTxRowEncodesTaggedReply(t *testing.T) {
	row, err := persistence.NewTxRow(sampleTx(7, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.TxID)
	assert.Equal(t, "swap", row.Kind)
	assert.Contains(t, string(row.Reply), `"kind":"swap"`)

	reply, err := ledger.UnmarshalReply(row.Reply)
	require.NoError(t, err)
	ids, _ := ledger.ReplyRefs(reply)
	assert.Equal(t, []uint64{3}, ids)

	tr := persistence.NewTransferRow(7, ledger.Transfer{TransferID: 3, Amount: sdkmath.NewInt(12345678901234)})
	assert.Equal(t, "12345678901234", tr.Amount)
	assert.Equal(t, int64(7), tr.TxID)
}
