package core

import (
	"fmt"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProofChecker implements two-tier replay detection for inbound proofs.
// Tier 1 is an in-memory LRU of recently consumed keys; tier 2 is the
// store's proof index, which is also the authoritative guard: consuming a
// proof claims the index entry inside the same commit as the transfer.
type ProofChecker struct {
	lru     *lru.Cache[string, uint64]
	store   *store.Store
	metrics *observability.Metrics
}

func NewProofChecker(capacity int, s *store.Store, m *observability.Metrics) (*ProofChecker, error) {
	cache, err := lru.New[string, uint64](capacity)
	if err != nil {
		return nil, fmt.Errorf("proof cache: %w", err)
	}
	return &ProofChecker{lru: cache, store: s, metrics: m}, nil
}

// Check returns ErrReplay if key was already consumed.
func (c *ProofChecker) Check(key string) error {
	// Tier 1: LRU (hot path)
	if id, ok := c.lru.Get(key); ok {
		c.metrics.ProofReplays.WithLabelValues("lru").Inc()
		return ledger.ErrReplay.Wrapf("%s consumed by transfer %d", key, id)
	}

	// Tier 2: store index
	id, ok, err := store.Lookup(c.store, store.ByProof, key)
	if err != nil {
		return err
	}
	if ok {
		c.metrics.ProofReplays.WithLabelValues("store").Inc()
		c.lru.Add(key, id)
		return ledger.ErrReplay.Wrapf("%s consumed by transfer %d", key, id)
	}
	return nil
}

// MarkConsumed records key after its transfer committed.
func (c *ProofChecker) MarkConsumed(key string, transferID uint64) {
	c.lru.Add(key, transferID)
	c.metrics.ProofCacheSize.Set(float64(c.lru.Len()))
}

// Warm loads the proof keys of the most recent inbound transfers.
func (c *ProofChecker) Warm(limit int) (int, error) {
	loaded := 0
	err := store.ScanReverse(c.store, store.Transfers, func(id uint64, t ledger.Transfer) (bool, error) {
		if t.Direction == ledger.Inbound && t.ProofKey != "" {
			c.lru.Add(t.ProofKey, id)
			loaded++
		}
		return loaded < limit, nil
	})
	c.metrics.ProofCacheSize.Set(float64(c.lru.Len()))
	return loaded, err
}

// Size returns the number of cached keys.
func (c *ProofChecker) Size() int {
	return c.lru.Len()
}

// NativeProofKey identifies a native-ledger block.
func NativeProofKey(ledgerID string, blockIndex uint64) string {
	return fmt.Sprintf("%s:block:%d", ledgerID, blockIndex)
}

// SolanaProofKey identifies a Solana transaction.
func SolanaProofKey(signature string) string {
	return "sol:" + signature
}
