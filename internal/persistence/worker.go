package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"

	"github.com/rs/zerolog"
)

// TransferSource resolves the transfers referenced by a Tx.
type TransferSource interface {
	Transfers(ids []uint64) ([]ledger.Transfer, error)
}

// AuditWorker drains the persist channel and batch-writes Tx records to
// the Postgres audit log. The engine gives up on a full channel after a
// timeout; once Backfill has run, Txs it skipped are read back from the
// store when the watermark stays stuck behind a gap.
type AuditWorker struct {
	writer       *AuditLogWriter
	inputChan    <-chan ledger.Tx
	transfers    TransferSource
	batchSize    int
	flushTimeout time.Duration
	seq          *TxSequence
	src          TxSource
	stalledAt    uint64 // watermark seen stuck behind a gap on the last tick
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewAuditWorker(
	db *sql.DB,
	inputChan <-chan ledger.Tx,
	transfers TransferSource,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *AuditWorker {
	return &AuditWorker{
		writer:       NewAuditLogWriter(db),
		inputChan:    inputChan,
		transfers:    transfers,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		seq:          NewTxSequence(0),
		metrics:      metrics,
		log:          log,
	}
}

// Run batches incoming Txs and flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled or the channel is
// closed.
func (w *AuditWorker) Run(ctx context.Context) error {
	batch := make([]ledger.Tx, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("txs", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case tx, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("txs", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, tx)
			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			} else if err := w.fillGaps(ctx); err != nil {
				w.log.Error().Err(err).Msg("audit gap fill failed")
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write
// succeeds or ctx is cancelled, in which case one last attempt is made
// with a background context.
func (w *AuditWorker) flushWithRetry(ctx context.Context, txs []ledger.Tx) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("txs", len(txs)).Msg("audit flush retry")
			w.metrics.PersistRetry.Inc()
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), txs); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, txs)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("audit flush succeeded")
			}
			return nil
		}
		w.metrics.PersistErrors.WithLabelValues("retry").Inc()
	}
}

func (w *AuditWorker) flush(ctx context.Context, txs []ledger.Tx) error {
	start := time.Now()

	txRows := make([]TxRow, 0, len(txs))
	ids := make([]uint64, 0, len(txs))
	var transferRows []TransferRow
	for _, tx := range txs {
		ids = append(ids, tx.TxID)
		row, err := NewTxRow(tx)
		if err != nil {
			w.metrics.PersistErrors.WithLabelValues("encode").Inc()
			return err
		}
		txRows = append(txRows, row)

		refs, _ := ledger.ReplyRefs(tx.Reply)
		if len(refs) == 0 || w.transfers == nil {
			continue
		}
		transfers, err := w.transfers.Transfers(refs)
		if err != nil {
			w.metrics.PersistErrors.WithLabelValues("load_transfers").Inc()
			return err
		}
		for _, t := range transfers {
			transferRows = append(transferRows, NewTransferRow(tx.TxID, t))
		}
	}

	dbtx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		return err
	}
	defer dbtx.Rollback()

	if err := w.writer.WriteTxBatch(ctx, dbtx, txRows); err != nil {
		w.metrics.PersistErrors.WithLabelValues("write_txs").Inc()
		return err
	}
	if err := w.writer.WriteTransferBatch(ctx, dbtx, transferRows); err != nil {
		w.metrics.PersistErrors.WithLabelValues("write_transfers").Inc()
		return err
	}
	mark := w.seq.Peek(ids)
	if err := w.writer.AdvanceWatermark(ctx, dbtx, int64(mark)); err != nil {
		w.metrics.PersistErrors.WithLabelValues("watermark").Inc()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		return err
	}

	w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
	w.metrics.PersistBatchSize.Observe(float64(len(txRows)))
	w.metrics.PersistTxsWritten.Add(float64(len(txRows)))
	w.seq.Commit(ids)
	w.metrics.PersistLastTx.Set(float64(mark))
	if ahead := w.seq.Ahead(); ahead > 0 {
		w.log.Debug().Uint64("watermark", mark).Int("ahead", ahead).Msg("txs written ahead of a gap")
	}
	return nil
}

// fillGaps rewrites Txs missing below ids already written once the
// watermark has been stuck at the same gap for a full idle tick. Rows
// that did arrive are skipped by the writer's ON CONFLICT clause.
func (w *AuditWorker) fillGaps(ctx context.Context) error {
	if w.src == nil || w.seq.Ahead() == 0 {
		w.stalledAt = 0
		return nil
	}
	mark := w.seq.Contiguous()
	if w.stalledAt != mark+1 {
		w.stalledAt = mark + 1
		return nil
	}
	txs, err := w.src.TxsFrom(mark+1, w.batchSize)
	if err != nil || len(txs) == 0 {
		return err
	}
	w.log.Warn().Uint64("watermark", mark).Int("txs", len(txs)).Msg("filling audit gap from store")
	if err := w.flushWithRetry(ctx, txs); err != nil {
		return err
	}
	w.stalledAt = 0
	return nil
}

// Watermark returns the highest tx id below which the audit log has no
// gaps.
func (w *AuditWorker) Watermark() uint64 {
	return w.seq.Contiguous()
}

// Writer returns the underlying writer.
func (w *AuditWorker) Writer() *AuditLogWriter {
	return w.writer
}
