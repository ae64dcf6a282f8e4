package core

import (
	"context"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

const statsWindow = 24 * time.Hour

// sameReserves reports whether nothing traded or moved liquidity between
// the two reads of a pool.
func sameReserves(a, b ledger.Pool) bool {
	return a.Balance0.Equal(b.Balance0) &&
		a.Balance1.Equal(b.Balance1) &&
		a.LPTotalSupply.Equal(b.LPTotalSupply)
}

// carryStats copies the rolling window from the stored pool onto a
// freshly computed one.
func carryStats(next, stored ledger.Pool) ledger.Pool {
	next.RollingVolume = stored.RollingVolume
	next.RollingLPFee = stored.RollingLPFee
	next.RollingSwaps = stored.RollingSwaps
	next.RollingAPY = stored.RollingAPY
	return next
}

type poolWindow struct {
	volume sdkmath.Int
	lpFee  sdkmath.Int
	swaps  uint64
}

// RefreshPoolStats recomputes every pool's 24h volume, LP fee, swap count
// and APY from successful swap Txs. Amounts are in token_1 units.
func (e *Engine) RefreshPoolStats() (int, error) {
	cutoff := e.now().Add(-statsWindow)

	pools := make(map[uint64]ledger.Pool)
	err := store.Scan[ledger.Pool](e.store, store.Pools, 1, func(id uint64, p ledger.Pool) (bool, error) {
		pools[id] = p
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	windows := make(map[uint64]*poolWindow, len(pools))
	err = store.ScanReverse[ledger.Tx](e.store, store.Txs, func(_ uint64, tx ledger.Tx) (bool, error) {
		if tx.Ts.Before(cutoff) {
			return false, nil
		}
		reply, ok := tx.Reply.(ledger.SwapReply)
		if !ok || tx.Status != ledger.TxSuccess {
			return true, nil
		}
		for _, c := range reply.Txs {
			p, ok := pools[c.PoolID]
			if !ok {
				continue
			}
			w := windows[c.PoolID]
			if w == nil {
				w = &poolWindow{volume: sdkmath.ZeroInt(), lpFee: sdkmath.ZeroInt()}
				windows[c.PoolID] = w
			}
			w.volume = w.volume.Add(inToken1(p, c.PayTokenID, c.PayAmount))
			w.lpFee = w.lpFee.Add(inToken1(p, c.PayTokenID, c.LPFee))
			w.swaps++
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	err = e.store.Update(func(b *store.Batch) error {
		for id := range pools {
			p, ok, err := store.Get[ledger.Pool](b, store.Pools, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			w := windows[id]
			if w == nil {
				w = &poolWindow{volume: sdkmath.ZeroInt(), lpFee: sdkmath.ZeroInt()}
			}
			p.RollingVolume = w.volume
			p.RollingLPFee = w.lpFee
			p.RollingSwaps = w.swaps
			p.RollingAPY = apy(w.lpFee, p.Balance1)
			if err := b.Put(store.Pools, id, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(pools), nil
}

// inToken1 values an amount of tokenID in the pool's token_1 at the
// current reserves.
func inToken1(p ledger.Pool, tokenID uint64, amount sdkmath.Int) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	if tokenID == p.TokenID1 {
		return amount
	}
	if !p.Balance0.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(p.Balance1).Quo(p.Balance0)
}

// apy annualises a day of LP fees against both sides of the pool, valued
// as twice the token_1 reserve.
func apy(dayFee, balance1 sdkmath.Int) float64 {
	if !balance1.IsPositive() || !dayFee.IsPositive() {
		return 0
	}
	fee := sdkmath.LegacyNewDecFromInt(dayFee)
	tvl := sdkmath.LegacyNewDecFromInt(balance1.MulRaw(2))
	v, err := fee.MulInt64(365).Quo(tvl).MulInt64(100).Float64()
	if err != nil {
		return 0
	}
	return v
}

// RunStatsRefresher refreshes pool statistics every interval until ctx
// is cancelled.
func (e *Engine) RunStatsRefresher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.RefreshPoolStats()
			if err != nil {
				e.log.Error().Err(err).Msg("pool stats refresh failed")
				continue
			}
			e.log.Debug().Int("pools", n).Msg("pool stats refreshed")
		}
	}
}
