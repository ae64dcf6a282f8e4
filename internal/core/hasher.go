package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"SwapLedger/internal/ledger"
)

const GenesisHashSeed = "SwapLedger:genesis:v1"

// auditTipMeta is the store metadata key holding the chain tip.
const auditTipMeta = "audit_tip"

// AuditHasher chains finalized Tx records:
// hash[N] = SHA-256(hash[N-1] || tx_id LE || digest(tx)).
type AuditHasher struct {
	mu       sync.Mutex
	prevHash [32]byte
}

// NewAuditHasher starts from the genesis hash.
func NewAuditHasher() *AuditHasher {
	return &AuditHasher{prevHash: sha256.Sum256([]byte(GenesisHashSeed))}
}

// Restore resumes the chain from a persisted tip.
func (h *AuditHasher) Restore(tip []byte) error {
	if len(tip) != 32 {
		return fmt.Errorf("audit tip has %d bytes, want 32", len(tip))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	copy(h.prevHash[:], tip)
	return nil
}

// Next computes the hash for txID without advancing the tip.
func (h *AuditHasher) Next(txID uint64, digest []byte) (prev, next [32]byte) {
	h.mu.Lock()
	prev = h.prevHash
	h.mu.Unlock()
	return prev, chainHash(prev, txID, digest)
}

// Advance moves the tip once the Tx carrying hash has committed.
func (h *AuditHasher) Advance(hash [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prevHash = hash
}

// Tip returns the current chain tip.
func (h *AuditHasher) Tip() [32]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prevHash
}

func chainHash(prev [32]byte, txID uint64, digest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(prev[:])
	var idBuf [8]byte
	binary.LittleEndian.PutUint64(idBuf[:], txID)
	hasher.Write(idBuf[:])
	hasher.Write(digest)

	var out [32]byte
	copy(out[:], hasher.Sum(nil))
	return out
}

// TxDigest is the canonical encoding of tx with its hash fields cleared.
func TxDigest(tx ledger.Tx) ([]byte, error) {
	tx.PrevHash, tx.Hash = "", ""
	return json.Marshal(tx)
}

// VerifyChain recomputes the hashes of consecutive txs starting after
// prev. It returns the id of the first tx that does not match.
func VerifyChain(prev [32]byte, txs []ledger.Tx) (uint64, error) {
	for _, tx := range txs {
		if tx.PrevHash != hex.EncodeToString(prev[:]) {
			return tx.TxID, fmt.Errorf("tx %d: prev hash mismatch", tx.TxID)
		}
		digest, err := TxDigest(tx)
		if err != nil {
			return tx.TxID, err
		}
		next := chainHash(prev, tx.TxID, digest)
		if tx.Hash != hex.EncodeToString(next[:]) {
			return tx.TxID, fmt.Errorf("tx %d: hash mismatch", tx.TxID)
		}
		prev = next
	}
	return 0, nil
}

// GenesisHash returns the hash the chain starts from.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}
