package core

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"SwapLedger/internal/ledger"
)

// LockManager hands out advisory locks on logical resources. A held key
// is never waited on: TryAcquire fails immediately with ErrBusy.
type LockManager struct {
	mu   sync.Mutex
	held map[string]uint64 // key -> owning request id
}

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]uint64)}
}

// TryAcquire takes every key or none of them. The returned release is
// idempotent.
func (l *LockManager) TryAcquire(owner uint64, keys ...string) (func(), error) {
	keys = dedupe(keys)

	l.mu.Lock()
	for _, k := range keys {
		if by, ok := l.held[k]; ok {
			l.mu.Unlock()
			return nil, ledger.ErrBusy.Wrapf("%s is held by request %d", k, by)
		}
	}
	for _, k := range keys {
		l.held[k] = owner
	}
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, k := range keys {
				if l.held[k] == owner {
					delete(l.held, k)
				}
			}
		})
	}, nil
}

// Held returns the number of keys currently locked.
func (l *LockManager) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func dedupe(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

func UserLock(userID uint64) string { return "user:" + strconv.FormatUint(userID, 10) }
func PoolLock(poolID uint64) string { return "pool:" + strconv.FormatUint(poolID, 10) }
func ClaimLock(id uint64) string    { return "claim:" + strconv.FormatUint(id, 10) }

// PairLock guards pool creation for a pair that has no pool yet.
func PairLock(a, b uint64) string { return fmt.Sprintf("pair:%s", ledger.PairKey(a, b)) }
