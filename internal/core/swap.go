package core

import (
	"slices"

	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"
)

func (e *Engine) swap(r *run, a ledger.SwapArgs) (ledger.Reply, error) {
	// Verifying
	r.status(ledger.StateVerifying, "Verifying", "")
	pay, err := tradableToken(e.store, a.PayToken)
	if err != nil {
		return nil, err
	}
	recv, err := tradableToken(e.store, a.ReceiveToken)
	if err != nil {
		return nil, err
	}
	if a.PayAmount.IsNil() || !a.PayAmount.IsPositive() {
		return nil, ledger.ErrZeroAmount.Wrap("pay amount")
	}
	if !a.PayAmount.GT(pay.Fee) {
		return nil, ledger.ErrValidation.Wrapf("pay amount %s must exceed the %s fee %s", a.PayAmount, pay.Address(), pay.Fee)
	}
	dest := r.user.Principal
	if recv.Chain == ledger.ChainSOL {
		dest = a.ReceiveAddress
	}
	if err := e.settle.ValidateDestination(recv, dest); err != nil {
		return nil, err
	}
	maxSlippage := amm.DefaultMaxSlippage
	if a.MaxSlippage != nil && !a.MaxSlippage.IsNil() {
		maxSlippage = *a.MaxSlippage
	}
	discount := r.user.FeeDiscount(e.now())

	// Reject hopeless swaps before any deposit is taken.
	q, err := e.quoteSwap(e.store, pay, recv, a.PayAmount, discount)
	if err != nil {
		return nil, err
	}
	if err := amm.CheckSlippage(q.Result, maxSlippage, a.ReceiveAmount); err != nil {
		return nil, err
	}

	keys := []string{UserLock(r.user.UserID)}
	for _, id := range amm.PoolIDs(q.Hops) {
		keys = append(keys, PoolLock(id))
	}
	if err := r.lock(keys...); err != nil {
		return nil, err
	}
	r.note("Locked", "")

	if _, err := r.receive(pay, a.PayAmount, a.PayProof); err != nil {
		return nil, err
	}

	// Computing: pools are locked, so this is the price that commits.
	r.status(ledger.StateComputing, "Calculating", "")
	q, err = e.quoteSwap(e.store, pay, recv, a.PayAmount, discount)
	if err != nil {
		return nil, err
	}
	for _, id := range amm.PoolIDs(q.Hops) {
		if !slices.Contains(keys, PoolLock(id)) {
			return nil, ledger.ErrBusy.Wrapf("route changed to pool %d while verifying", id)
		}
	}
	res := q.Result
	if err := amm.CheckSlippage(res, maxSlippage, a.ReceiveAmount); err != nil {
		return nil, err
	}

	// Committing
	err = r.commit(func(b *store.Batch) error {
		for i, out := range res.Pools {
			fresh, ok, err := store.Get[ledger.Pool](b, store.Pools, out.PoolID)
			if err != nil {
				return err
			}
			if !ok || !sameReserves(fresh, q.Hops[i].Pool) {
				return ledger.ErrComputation.Wrapf("pool %d changed during swap", out.PoolID)
			}
			if err := b.Put(store.Pools, out.PoolID, carryStats(out, fresh)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Transferring
	r.status(ledger.StateTransferring, "Sending", "")
	r.payOut(recv, dest, res.ReceiveAmount, "swap payout")

	midPrice, _ := res.MidPrice.Float64()
	price, _ := res.Price.Float64()
	slippage, _ := res.Slippage.Float64()
	return ledger.SwapReply{
		RequestID:     r.req.RequestID,
		Status:        r.txStatus(),
		PayToken:      pay.Address(),
		PayAmount:     a.PayAmount,
		ReceiveToken:  recv.Address(),
		ReceiveAmount: res.ReceiveAmount,
		MidPrice:      midPrice,
		Price:         price,
		Slippage:      slippage,
		Txs:           res.Calcs,
		TransferIDs:   r.transferIDs,
		ClaimIDs:      r.claimIDs,
		Ts:            e.now(),
	}, nil
}
