package persistence

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Checkpointer writes a consistent on-disk copy of the ledger store.
type Checkpointer interface {
	Checkpoint(dir string) error
}

// CheckpointManager takes store checkpoints before upgrades and records
// them in audit.checkpoints so an operator can find the copy matching a
// given audit-chain position. The database is optional.
type CheckpointManager struct {
	db      *sql.DB
	baseDir string
	log     zerolog.Logger
	now     func() time.Time
}

// CheckpointRecord describes one checkpoint.
type CheckpointRecord struct {
	CheckpointID uuid.UUID `json:"checkpoint_id"`
	Dir          string    `json:"dir"`
	LastTxID     uint64    `json:"last_tx_id"`
	AuditTip     string    `json:"audit_tip"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewCheckpointManager(db *sql.DB, baseDir string, log zerolog.Logger) *CheckpointManager {
	return &CheckpointManager{db: db, baseDir: baseDir, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Create checkpoints the store into a new directory under baseDir.
func (m *CheckpointManager) Create(ctx context.Context, cp Checkpointer, lastTxID uint64, auditTip []byte) (CheckpointRecord, error) {
	rec := CheckpointRecord{
		CheckpointID: uuid.New(),
		LastTxID:     lastTxID,
		AuditTip:     hex.EncodeToString(auditTip),
		CreatedAt:    m.now(),
	}
	rec.Dir = filepath.Join(m.baseDir, fmt.Sprintf("%s-%s", rec.CreatedAt.Format("20060102T150405Z"), rec.CheckpointID))

	if err := cp.Checkpoint(rec.Dir); err != nil {
		return rec, err
	}
	if m.db != nil {
		_, err := m.db.ExecContext(ctx, `
			INSERT INTO audit.checkpoints (checkpoint_id, dir, last_tx_id, audit_tip, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.CheckpointID, rec.Dir, int64(rec.LastTxID), rec.AuditTip, rec.CreatedAt)
		if err != nil {
			return rec, fmt.Errorf("record checkpoint: %w", err)
		}
	}
	m.log.Info().
		Str("checkpoint_id", rec.CheckpointID.String()).
		Str("dir", rec.Dir).
		Uint64("last_tx_id", rec.LastTxID).
		Msg("checkpoint created")
	return rec, nil
}

// Latest returns the most recent recorded checkpoint, nil when none.
func (m *CheckpointManager) Latest(ctx context.Context) (*CheckpointRecord, error) {
	if m.db == nil {
		return nil, nil
	}
	var (
		rec  CheckpointRecord
		last int64
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, dir, last_tx_id, audit_tip, created_at
		FROM audit.checkpoints
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&rec.CheckpointID, &rec.Dir, &last, &rec.AuditTip, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	rec.LastTxID = uint64(last)
	return &rec, nil
}
