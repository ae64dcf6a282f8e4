package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"SwapLedger/internal/ledger"
)

// TxSource lists finalized Txs in id order, starting at from.
type TxSource interface {
	TxsFrom(from uint64, limit int) ([]ledger.Tx, error)
}

// AuditWatermark reads how far the audit log has been written.
type AuditWatermark struct {
	db *sql.DB
}

func NewAuditWatermark(db *sql.DB) *AuditWatermark {
	return &AuditWatermark{db: db}
}

// LastTxID returns the highest tx id in the audit log, 0 when empty.
func (a *AuditWatermark) LastTxID(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var last int64
	err := a.db.QueryRowContext(ctx, `SELECT last_tx_id FROM audit.watermark WHERE id = 1`).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(last), nil
}

// Backfill writes every Tx after the watermark that the store holds but
// the audit log does not, e.g. Txs finalized right before a crash. Runs
// before the worker starts consuming the live channel.
func (w *AuditWorker) Backfill(ctx context.Context, src TxSource, mark *AuditWatermark) (int, error) {
	last, err := mark.LastTxID(ctx)
	if err != nil {
		return 0, err
	}
	w.seq.Reset(last)
	w.src = src
	written := 0
	for {
		txs, err := src.TxsFrom(last+1, w.batchSize)
		if err != nil {
			return written, err
		}
		if len(txs) == 0 {
			break
		}
		if err := w.flushWithRetry(ctx, txs); err != nil {
			return written, err
		}
		written += len(txs)
		last = txs[len(txs)-1].TxID
	}
	if written > 0 {
		w.log.Info().Int("txs", written).Uint64("last_tx_id", last).Msg("audit log backfilled")
	}
	return written, nil
}
