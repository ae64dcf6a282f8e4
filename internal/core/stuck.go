package core

import (
	"context"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"
)

// StuckRequests returns non-terminal requests created more than olderThan
// ago. Scanning starts at the oldest request that was still open on the
// previous call.
func (e *Engine) StuckRequests(olderThan time.Duration) ([]ledger.Request, error) {
	cutoff := e.now().Add(-olderThan)
	from := e.stuckFrom.Load()
	next := uint64(0)
	var last uint64

	var stuck []ledger.Request
	err := store.Scan[ledger.Request](e.store, store.Requests, from, func(id uint64, req ledger.Request) (bool, error) {
		last = id
		if req.State.Terminal() {
			return true, nil
		}
		if next == 0 {
			next = id
		}
		if req.CreatedAt.Before(cutoff) {
			stuck = append(stuck, req)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if next == 0 && last != 0 {
		next = last + 1
	}
	if next > from {
		e.stuckFrom.Store(next)
	}
	return stuck, nil
}

// RunStuckDetector reports stuck requests every interval until ctx is
// cancelled.
func (e *Engine) RunStuckDetector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stuck, err := e.StuckRequests(e.cfg.StuckAfter)
			if err != nil {
				e.log.Error().Err(err).Msg("stuck request scan failed")
				continue
			}
			e.metrics.RequestsStuck.Set(float64(len(stuck)))
			for _, req := range stuck {
				e.log.Error().
					Uint64("request_id", req.RequestID).
					Str("kind", string(req.Op.Kind())).
					Str("state", req.State.String()).
					Time("created_at", req.CreatedAt).
					Msg("request stuck")
			}
		}
	}
}
