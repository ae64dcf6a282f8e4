package core

import (
	"fmt"

	"SwapLedger/internal/amm"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

// lpDecimals is the precision of every LP token.
const lpDecimals = 8

func (e *Engine) addPool(r *run, a ledger.AddPoolArgs) (ledger.Reply, error) {
	r.status(ledger.StateVerifying, "Verifying", "")
	t0, err := tradableToken(e.store, a.Token0)
	if err != nil {
		return nil, err
	}
	t1, err := tradableToken(e.store, a.Token1)
	if err != nil {
		return nil, err
	}
	if t0.TokenID == t1.TokenID {
		return nil, ledger.ErrValidation.Wrap("pool tokens must differ")
	}
	if err := checkDeposit(t0, a.Amount0); err != nil {
		return nil, err
	}
	if err := checkDeposit(t1, a.Amount1); err != nil {
		return nil, err
	}
	if _, exists, err := store.PoolForPair(e.store, t0.TokenID, t1.TokenID); err != nil {
		return nil, err
	} else if exists {
		return nil, ledger.ErrValidation.Wrapf("pool %s already exists", ledger.LPSymbol(t0.Symbol, t1.Symbol))
	}
	lpFee := e.cfg.DefaultLPFeeBps
	if a.LPFeeBps != nil {
		lpFee = *a.LPFeeBps
	}
	if lpFee > e.cfg.MaxLPFeeBps {
		return nil, ledger.ErrValidation.Wrapf("lp fee %d bps above maximum %d", lpFee, e.cfg.MaxLPFeeBps)
	}
	empty := ledger.NewPool(t0.TokenID, t1.TokenID, lpFee, e.cfg.ProtocolFeeBps, e.now())
	if _, _, _, err := amm.AddLiquidityAmounts(empty, a.Amount0, a.Amount1); err != nil {
		return nil, err
	}

	if err := r.lock(UserLock(r.user.UserID), PairLock(t0.TokenID, t1.TokenID)); err != nil {
		return nil, err
	}
	r.note("Locked", "")
	if _, err := r.receive(t0, a.Amount0, a.Proof0); err != nil {
		return nil, err
	}
	if _, err := r.receive(t1, a.Amount1, a.Proof1); err != nil {
		return nil, err
	}

	r.status(ledger.StateComputing, "Calculating", "")
	use0, use1, mint, err := amm.AddLiquidityAmounts(empty, a.Amount0, a.Amount1)
	if err != nil {
		return nil, err
	}

	var (
		pool ledger.Pool
		lp   ledger.Token
	)
	err = r.commit(func(b *store.Batch) error {
		now := e.now()
		lp = ledger.Token{
			Chain:     ledger.ChainLP,
			Symbol:    ledger.LPSymbol(t0.Symbol, t1.Symbol),
			Name:      fmt.Sprintf("%s/%s LP Token", t0.Symbol, t1.Symbol),
			Decimals:  lpDecimals,
			Fee:       sdkmath.ZeroInt(),
			Listed:    true,
			CreatedAt: now,
		}
		lpID, err := store.InsertToken(b, &lp)
		if err != nil {
			return err
		}

		pool = amm.ApplyAdd(empty, use0, use1, mint)
		pool.LPTokenID = lpID
		pool.CreatedAt = now
		poolID, err := b.Insert(store.Pools, &pool)
		if err != nil {
			return err
		}
		if err := b.ClaimIndex(store.ByPair, ledger.PairKey(t0.TokenID, t1.TokenID), poolID); err != nil {
			if isExists(err) {
				return ledger.ErrValidation.Wrapf("pool %s already exists", lp.Symbol)
			}
			return err
		}
		lp.PoolID = poolID
		if err := b.Put(store.Tokens, lpID, lp); err != nil {
			return err
		}
		return e.creditLP(b, r.user.UserID, lpID, mint)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Uint64("pool_id", pool.PoolID).Str("symbol", lp.Symbol).Uint16("lp_fee_bps", lpFee).Msg("pool created")

	return ledger.AddPoolReply{
		RequestID:     r.req.RequestID,
		Status:        r.txStatus(),
		PoolID:        pool.PoolID,
		Symbol:        lp.Symbol,
		Token0:        t0.Address(),
		Amount0:       use0,
		Token1:        t1.Address(),
		Amount1:       use1,
		LPFeeBps:      lpFee,
		LPTokenSymbol: lp.Address(),
		AddLPAmount:   mint,
		TransferIDs:   r.transferIDs,
		ClaimIDs:      r.claimIDs,
		Ts:            e.now(),
	}, nil
}

func (e *Engine) addLiquidity(r *run, a ledger.AddLiquidityArgs) (ledger.Reply, error) {
	r.status(ledger.StateVerifying, "Verifying", "")
	p, err := resolvePair(e.store, a.Token0, a.Token1)
	if err != nil {
		return nil, err
	}
	amount0, proof0, amount1, proof1 := a.Amount0, a.Proof0, a.Amount1, a.Proof1
	if p.flipped {
		amount0, proof0, amount1, proof1 = amount1, proof1, amount0, proof0
	}
	if err := checkDeposit(p.token0, amount0); err != nil {
		return nil, err
	}
	if err := checkDeposit(p.token1, amount1); err != nil {
		return nil, err
	}
	if _, _, _, err := amm.AddLiquidityAmounts(p.pool, amount0, amount1); err != nil {
		return nil, err
	}

	if err := r.lock(UserLock(r.user.UserID), PoolLock(p.pool.PoolID)); err != nil {
		return nil, err
	}
	r.note("Locked", "")
	dep0, err := r.receive(p.token0, amount0, proof0)
	if err != nil {
		return nil, err
	}
	dep1, err := r.receive(p.token1, amount1, proof1)
	if err != nil {
		return nil, err
	}

	r.status(ledger.StateComputing, "Calculating", "")
	pool, err := loadPool(e.store, p.pool.PoolID)
	if err != nil {
		return nil, err
	}
	use0, use1, mint, err := amm.AddLiquidityAmounts(pool, amount0, amount1)
	if err != nil {
		return nil, err
	}
	excess0, excess1 := amount0.Sub(use0), amount1.Sub(use1)
	refund0, refund1 := excess0.GT(p.token0.Fee), excess1.GT(p.token1.Fee)

	err = r.commit(func(b *store.Batch) error {
		fresh, err := loadPool(b, pool.PoolID)
		if err != nil {
			return err
		}
		if !sameReserves(fresh, pool) {
			return ledger.ErrComputation.Wrapf("pool %d changed during add liquidity", pool.PoolID)
		}
		next := amm.ApplyAdd(fresh, use0, use1, mint)
		// Excess too small to cover a transfer fee stays with the exchange.
		if !refund0 {
			next.ProtocolFee0 = next.ProtocolFee0.Add(excess0)
		}
		if !refund1 {
			next.ProtocolFee1 = next.ProtocolFee1.Add(excess1)
		}
		if err := b.Put(store.Pools, next.PoolID, next); err != nil {
			return err
		}
		return e.creditLP(b, r.user.UserID, next.LPTokenID, mint)
	})
	if err != nil {
		return nil, err
	}

	r.status(ledger.StateTransferring, "Sending", "")
	if refund0 {
		r.payOut(p.token0, dep0.refundTo, excess0, "excess deposit")
	}
	if refund1 {
		r.payOut(p.token1, dep1.refundTo, excess1, "excess deposit")
	}

	return ledger.AddLiquidityReply{
		RequestID:   r.req.RequestID,
		Status:      r.txStatus(),
		Symbol:      p.symbol(),
		Token0:      p.token0.Address(),
		Amount0:     use0,
		Token1:      p.token1.Address(),
		Amount1:     use1,
		AddLPAmount: mint,
		TransferIDs: r.transferIDs,
		ClaimIDs:    r.claimIDs,
		Ts:          e.now(),
	}, nil
}

func (e *Engine) removeLiquidity(r *run, a ledger.RemoveLiquidityArgs) (ledger.Reply, error) {
	r.status(ledger.StateVerifying, "Verifying", "")
	p, err := resolvePair(e.store, a.Token0, a.Token1)
	if err != nil {
		return nil, err
	}
	addr0, addr1 := a.Address0, a.Address1
	if p.flipped {
		addr0, addr1 = addr1, addr0
	}
	dest0 := destinationFor(p.token0, r.user.Principal, addr0)
	dest1 := destinationFor(p.token1, r.user.Principal, addr1)
	if err := e.settle.ValidateDestination(p.token0, dest0); err != nil {
		return nil, err
	}
	if err := e.settle.ValidateDestination(p.token1, dest1); err != nil {
		return nil, err
	}
	lp := a.RemoveLPAmount
	if lp.IsNil() || !lp.IsPositive() {
		return nil, ledger.ErrZeroAmount.Wrap("remove lp amount")
	}
	bal, ok, err := store.LPBalanceOf(e.store, r.user.UserID, p.pool.LPTokenID)
	if err != nil {
		return nil, err
	}
	if !ok || bal.Amount.LT(lp) {
		return nil, ledger.ErrValidation.Wrapf("insufficient %s balance", p.symbol())
	}

	if err := r.lock(UserLock(r.user.UserID), PoolLock(p.pool.PoolID)); err != nil {
		return nil, err
	}
	r.note("Locked", "")

	r.status(ledger.StateComputing, "Calculating", "")
	pool, err := loadPool(e.store, p.pool.PoolID)
	if err != nil {
		return nil, err
	}
	out0, out1, err := amm.RemoveLiquidityAmounts(pool, lp)
	if err != nil {
		return nil, err
	}
	send0, send1 := out0.GT(p.token0.Fee), out1.GT(p.token1.Fee)

	err = r.commit(func(b *store.Batch) error {
		fresh, err := loadPool(b, pool.PoolID)
		if err != nil {
			return err
		}
		if !sameReserves(fresh, pool) {
			return ledger.ErrComputation.Wrapf("pool %d changed during remove liquidity", pool.PoolID)
		}
		if err := e.debitLP(b, r.user.UserID, fresh.LPTokenID, lp); err != nil {
			return err
		}
		next := amm.ApplyRemove(fresh, lp, out0, out1)
		if !send0 {
			next.ProtocolFee0 = next.ProtocolFee0.Add(out0)
		}
		if !send1 {
			next.ProtocolFee1 = next.ProtocolFee1.Add(out1)
		}
		if err := ledger.ValidatePool(next); err != nil {
			return ledger.ErrComputation.Wrap(err.Error())
		}
		return b.Put(store.Pools, next.PoolID, next)
	})
	if err != nil {
		return nil, err
	}

	r.status(ledger.StateTransferring, "Sending", "")
	if send0 {
		r.payOut(p.token0, dest0, out0, "remove liquidity payout")
	}
	if send1 {
		r.payOut(p.token1, dest1, out1, "remove liquidity payout")
	}

	return ledger.RemoveLiquidityReply{
		RequestID:      r.req.RequestID,
		Status:         r.txStatus(),
		Symbol:         p.symbol(),
		Token0:         p.token0.Address(),
		Amount0:        out0,
		Token1:         p.token1.Address(),
		Amount1:        out1,
		RemoveLPAmount: lp,
		TransferIDs:    r.transferIDs,
		ClaimIDs:       r.claimIDs,
		Ts:             e.now(),
	}, nil
}

// checkDeposit requires amount to be positive and larger than the token's
// transfer fee, so a refund is always possible.
func checkDeposit(t ledger.Token, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ledger.ErrZeroAmount.Wrapf("%s amount", t.Address())
	}
	if !t.Fee.IsNil() && !amount.GT(t.Fee) {
		return ledger.ErrValidation.Wrapf("%s amount %s must exceed fee %s", t.Address(), amount, t.Fee)
	}
	return nil
}

func destinationFor(t ledger.Token, principal, address string) string {
	if t.Chain == ledger.ChainSOL {
		return address
	}
	return principal
}

func loadPool(r store.Reader, id uint64) (ledger.Pool, error) {
	p, ok, err := store.Get[ledger.Pool](r, store.Pools, id)
	if err != nil {
		return p, err
	}
	if !ok {
		return p, ledger.ErrNotFound.Wrapf("pool %d", id)
	}
	return p, nil
}
