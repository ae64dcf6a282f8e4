package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SwapLedger/internal/ledger"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AuditLogWriter writes finalized Tx records and their transfers to
// Postgres using multi-row INSERT. Writes are idempotent on the primary
// keys so a replayed batch is harmless.
type AuditLogWriter struct {
	db *sql.DB
}

// TxRow is a row of audit.txs.
type TxRow struct {
	TxID      int64
	RequestID int64
	UserID    int64
	Kind      string
	Status    string
	Reply     []byte // JSON-encoded tagged reply
	PrevHash  string
	Hash      string
	Timestamp time.Time
}

// TransferRow is a row of audit.transfers.
type TransferRow struct {
	TransferID int64
	TxID       int64
	RequestID  int64
	Direction  string
	TokenID    int64
	Amount     string // arbitrary precision, stored as NUMERIC
	ChainRef   string
	Party      string
	Timestamp  time.Time
}

func NewAuditLogWriter(db *sql.DB) *AuditLogWriter {
	return &AuditLogWriter{db: db}
}

// NewTxRow converts a finalized Tx.
func NewTxRow(tx ledger.Tx) (TxRow, error) {
	reply, err := ledger.MarshalReply(tx.Reply)
	if err != nil {
		return TxRow{}, fmt.Errorf("encode tx %d reply: %w", tx.TxID, err)
	}
	return TxRow{
		TxID:      int64(tx.TxID),
		RequestID: int64(tx.RequestID),
		UserID:    int64(tx.UserID),
		Kind:      string(tx.Kind),
		Status:    string(tx.Status),
		Reply:     reply,
		PrevHash:  tx.PrevHash,
		Hash:      tx.Hash,
		Timestamp: tx.Ts,
	}, nil
}

// NewTransferRow converts a transfer referenced by txID.
func NewTransferRow(txID uint64, t ledger.Transfer) TransferRow {
	return TransferRow{
		TransferID: int64(t.TransferID),
		TxID:       int64(txID),
		RequestID:  int64(t.RequestID),
		Direction:  string(t.Direction),
		TokenID:    int64(t.TokenID),
		Amount:     t.Amount.String(),
		ChainRef:   t.ChainRef,
		Party:      t.Party,
		Timestamp:  t.Ts,
	}
}

// WriteTxBatch writes a batch of rows to audit.txs.
func (w *AuditLogWriter) WriteTxBatch(ctx context.Context, ex Execer, txs []TxRow) error {
	if len(txs) == 0 {
		return nil
	}

	query := `INSERT INTO audit.txs
		(tx_id, request_id, user_id, kind, status, reply, prev_hash, hash, ts)
		VALUES `

	values := make([]string, 0, len(txs))
	args := make([]any, 0, len(txs)*9)

	for i, t := range txs {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			t.TxID, t.RequestID, t.UserID, t.Kind, t.Status,
			t.Reply, t.PrevHash, t.Hash, t.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (tx_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTransferBatch writes a batch of rows to audit.transfers.
func (w *AuditLogWriter) WriteTransferBatch(ctx context.Context, ex Execer, transfers []TransferRow) error {
	if len(transfers) == 0 {
		return nil
	}

	query := `INSERT INTO audit.transfers
		(transfer_id, tx_id, request_id, direction, token_id, amount, chain_ref, party, ts)
		VALUES `

	values := make([]string, 0, len(transfers))
	args := make([]any, 0, len(transfers)*9)

	for i, t := range transfers {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			t.TransferID, t.TxID, t.RequestID, t.Direction, t.TokenID,
			t.Amount, t.ChainRef, t.Party, t.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (transfer_id) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// AdvanceWatermark records the highest tx id written. It never moves
// backwards.
func (w *AuditLogWriter) AdvanceWatermark(ctx context.Context, ex Execer, txID int64) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO audit.watermark (id, last_tx_id, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_tx_id = GREATEST(audit.watermark.last_tx_id, EXCLUDED.last_tx_id),
		    updated_at = NOW()
	`, txID)
	return err
}
