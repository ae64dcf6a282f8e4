package amm

import "SwapLedger/internal/ledger"

// Hop is one traversal of a pool.
type Hop struct {
	Pool           ledger.Pool
	PayTokenID     uint64
	ReceiveTokenID uint64
}

// PoolFinder looks up the pool for an unordered token pair.
type PoolFinder func(a, b uint64) (ledger.Pool, bool, error)

// Route prefers a direct pool and falls back to two hops through hub.
func Route(find PoolFinder, pay, receive, hub uint64) ([]Hop, error) {
	if pay == receive {
		return nil, ledger.ErrValidation.Wrap("pay and receive tokens are the same")
	}
	p, ok, err := find(pay, receive)
	if err != nil {
		return nil, err
	}
	if ok {
		return []Hop{{Pool: p, PayTokenID: pay, ReceiveTokenID: receive}}, nil
	}

	if hub == 0 || pay == hub || receive == hub {
		return nil, ledger.ErrNotFound.Wrapf("no pool for tokens %d and %d", pay, receive)
	}
	first, ok, err := find(pay, hub)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.ErrNotFound.Wrapf("no route from token %d through hub %d", pay, hub)
	}
	second, ok, err := find(hub, receive)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.ErrNotFound.Wrapf("no route from hub %d to token %d", hub, receive)
	}
	return []Hop{
		{Pool: first, PayTokenID: pay, ReceiveTokenID: hub},
		{Pool: second, PayTokenID: hub, ReceiveTokenID: receive},
	}, nil
}

// PoolIDs lists the pools a route touches.
func PoolIDs(hops []Hop) []uint64 {
	ids := make([]uint64, 0, len(hops))
	for _, h := range hops {
		ids = append(ids, h.Pool.PoolID)
	}
	return ids
}
