package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"SwapLedger/internal/claims"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

// run is the in-flight state of one request.
type run struct {
	e     *Engine
	ctx   context.Context
	req   ledger.Request
	user  ledger.User
	start time.Time

	received    []deposit
	transferIDs []uint64
	claimIDs    []uint64
	failedLegs  int
	committed   bool
	releases    []func()
}

// deposit is an inbound leg that may have to be refunded.
type deposit struct {
	token    ledger.Token
	amount   sdkmath.Int
	refundTo string
}

func (e *Engine) begin(ctx context.Context, user ledger.User, op ledger.Operation) (*run, error) {
	now := e.now()
	req := ledger.Request{
		UserID:    user.UserID,
		Op:        op,
		State:     ledger.StateCreated,
		Reply:     ledger.PendingReply{},
		CreatedAt: now,
	}
	req.AddStatus("Started", string(op.Kind()), now)
	err := e.store.Update(func(b *store.Batch) error {
		_, err := b.Insert(store.Requests, &req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return &run{e: e, ctx: ctx, req: req, user: user, start: time.Now()}, nil
}

func (r *run) release() {
	for i := len(r.releases) - 1; i >= 0; i-- {
		r.releases[i]()
	}
	r.releases = nil
}

// status appends a progress entry and persists the request.
func (r *run) status(state ledger.RequestState, text, msg string) {
	r.req.State = state
	r.req.AddStatus(text, msg, r.e.now())
	err := r.e.store.Update(func(b *store.Batch) error {
		return b.Put(store.Requests, r.req.RequestID, r.req)
	})
	if err != nil {
		r.e.log.Error().Err(err).Uint64("request_id", r.req.RequestID).Str("status", text).Msg("failed to persist request status")
	}
}

func (r *run) note(text, msg string) {
	r.status(r.req.State, text, msg)
}

// lock takes the given keys for the rest of the request.
func (r *run) lock(keys ...string) error {
	release, err := r.e.locks.TryAcquire(r.req.RequestID, keys...)
	if err != nil {
		r.e.metrics.RequestsBusy.WithLabelValues(string(r.req.Op.Kind())).Inc()
		return err
	}
	r.releases = append(r.releases, release)
	return nil
}

// receive consumes an inbound deposit exactly once.
func (r *run) receive(token ledger.Token, amount sdkmath.Int, proof *ledger.Proof) (deposit, error) {
	if key, ok := ProofKeyHint(token, proof); ok {
		if err := r.e.proofs.Check(key); err != nil {
			return deposit{}, err
		}
	}

	r.note("Receiving "+token.Address(), amount.String())
	rc, err := r.e.settle.Receive(r.ctx, token, r.user.Principal, amount, proof)
	if err != nil {
		r.note("Failed to receive "+token.Address(), err.Error())
		return deposit{}, err
	}

	var transferID uint64
	err = r.e.store.Update(func(b *store.Batch) error {
		t := ledger.Transfer{
			RequestID: r.req.RequestID,
			Direction: ledger.Inbound,
			TokenID:   token.TokenID,
			Amount:    amount,
			ProofKey:  rc.ProofKey,
			ChainRef:  rc.ChainRef,
			Party:     r.user.Principal,
			Ts:        r.e.now(),
		}
		id, err := b.Insert(store.Transfers, &t)
		if err != nil {
			return err
		}
		if err := b.ClaimIndex(store.ByProof, rc.ProofKey, id); err != nil {
			if isExists(err) {
				return ledger.ErrReplay.Wrapf("%s already consumed", rc.ProofKey)
			}
			return err
		}
		transferID = id
		b.OnCommit(func() { r.e.proofs.MarkConsumed(rc.ProofKey, id) })
		return nil
	})
	if err != nil {
		r.note("Failed to receive "+token.Address(), err.Error())
		return deposit{}, err
	}

	d := deposit{token: token, amount: amount, refundTo: rc.RefundTo}
	r.received = append(r.received, d)
	r.transferIDs = append(r.transferIDs, transferID)
	r.note("Received "+token.Address(), amount.String())
	return d, nil
}

// payOut sends amount of token to dest. A failed leg becomes a claim.
func (r *run) payOut(token ledger.Token, dest string, amount sdkmath.Int, reason string) bool {
	r.note("Sending "+token.Address(), amount.String())
	ref, sendErr := r.e.settle.Send(r.ctx, token, dest, amount)
	if sendErr == nil {
		var transferID uint64
		err := r.e.store.Update(func(b *store.Batch) error {
			t := ledger.Transfer{
				RequestID: r.req.RequestID,
				Direction: ledger.Outbound,
				TokenID:   token.TokenID,
				Amount:    amount,
				ChainRef:  ref,
				Party:     dest,
				Ts:        r.e.now(),
			}
			var err error
			transferID, err = b.Insert(store.Transfers, &t)
			return err
		})
		if err != nil {
			r.e.log.Error().Err(err).
				Uint64("request_id", r.req.RequestID).
				Str("chain_ref", ref).
				Msg("outbound transfer sent but not recorded")
		} else {
			r.transferIDs = append(r.transferIDs, transferID)
		}
		r.note("Sent "+token.Address(), ref)
		return true
	}

	r.failedLegs++
	r.e.log.Warn().Err(sendErr).
		Uint64("request_id", r.req.RequestID).
		Str("token", token.Address()).
		Str("amount", amount.String()).
		Msg("outbound transfer failed")

	var claimID uint64
	err := r.e.store.Update(func(b *store.Batch) error {
		id, err := r.e.claims.Create(b, claims.New{
			UserID:      r.user.UserID,
			TokenID:     token.TokenID,
			Amount:      amount,
			Destination: dest,
			Reason:      fmt.Sprintf("%s: %v", reason, sendErr),
			RequestID:   r.req.RequestID,
			TransferIDs: append([]uint64(nil), r.transferIDs...),
		})
		claimID = id
		return err
	})
	if err != nil {
		r.e.log.Error().Err(err).
			Uint64("request_id", r.req.RequestID).
			Str("token", token.Address()).
			Str("amount", amount.String()).
			Msg("failed to create claim")
		r.note("Failed to send "+token.Address(), sendErr.Error())
		return false
	}
	r.claimIDs = append(r.claimIDs, claimID)
	r.note("Failed to send "+token.Address(), fmt.Sprintf("%v, claim #%d created", sendErr, claimID))
	return false
}

// commit applies the request's mutations in one atomic batch.
func (r *run) commit(fn func(b *store.Batch) error) error {
	r.status(ledger.StateCommitting, "Updating ledger", "")
	if err := r.e.store.Update(fn); err != nil {
		return err
	}
	r.committed = true
	return nil
}

func (r *run) txStatus() ledger.TxStatus {
	if r.failedLegs > 0 {
		return ledger.TxFailed
	}
	return ledger.TxSuccess
}

// refund returns every received deposit after a pre-commit failure.
func (r *run) refund(cause error) {
	for _, d := range r.received {
		r.payOut(d.token, d.refundTo, d.amount, "refund")
	}
	r.received = nil
	r.e.log.Info().
		Err(cause).
		Uint64("request_id", r.req.RequestID).
		Uints64("claims", r.claimIDs).
		Msg("request refunded")
}

// conclude moves the request to its terminal state. Locks are released
// as soon as the terminal record commits, before the Tx is handed to the
// audit and publish channels.
func (r *run) conclude(reply ledger.Reply, err error) (ledger.Reply, error) {
	kind := string(r.req.Op.Kind())
	if err != nil && !r.committed {
		if len(r.received) > 0 {
			r.status(ledger.StateTransferring, "Refunding", err.Error())
			r.refund(err)
		}
		return r.fail(kind, err)
	}
	if err != nil {
		// Committed flows report failures through the reply status; an
		// error here means the flow itself is broken.
		r.e.log.Error().Err(err).Uint64("request_id", r.req.RequestID).Msg("error after commit")
		return r.fail(kind, err)
	}

	tx, ferr := r.finalize(reply)
	r.release()
	if ferr != nil {
		r.e.log.Error().Err(ferr).Uint64("request_id", r.req.RequestID).Msg("failed to finalize request")
		r.observe(kind, "error")
		return reply, ferr
	}
	r.emit(tx)
	if tx.Status == ledger.TxFailed {
		r.observe(kind, "partial")
		return tx.Reply, ledger.ErrSettlement.Wrapf("request %d: %d outbound transfer(s) failed, claims %v", r.req.RequestID, r.failedLegs, r.claimIDs)
	}
	r.observe(kind, "success")
	return tx.Reply, nil
}

// fail ends the request with a FailedReply. When claims were created the
// failure is also settled as a Failed Tx so every claim traces back to an
// audited record.
func (r *run) fail(kind string, cause error) (ledger.Reply, error) {
	failed := ledger.FailedReply{
		RequestID:   r.req.RequestID,
		Error:       cause.Error(),
		TransferIDs: r.transferIDs,
		ClaimIDs:    r.claimIDs,
	}
	if len(r.claimIDs) == 0 {
		r.terminate(failed, cause)
		r.release()
		r.observe(kind, "failed")
		return failed, cause
	}

	r.note("Failed", cause.Error())
	tx, err := r.finalize(failed)
	if err != nil {
		r.e.log.Error().Err(err).Uint64("request_id", r.req.RequestID).Msg("failed to settle failed request")
		r.terminate(failed, cause)
		r.release()
		r.observe(kind, "error")
		return failed, cause
	}
	r.release()
	r.emit(tx)
	r.observe(kind, "failed")
	return failed, cause
}

func (r *run) terminate(failed ledger.FailedReply, cause error) {
	now := r.e.now()
	r.req.State = ledger.StateFailed
	r.req.Reply = failed
	r.req.AddStatus("Failed", cause.Error(), now)
	err := r.e.store.Update(func(b *store.Batch) error {
		return b.Put(store.Requests, r.req.RequestID, r.req)
	})
	if err != nil {
		r.e.log.Error().Err(err).Uint64("request_id", r.req.RequestID).Msg("failed to persist failed request")
	}
}

// finalize writes the Tx, chains its audit hash and closes the request.
func (r *run) finalize(reply ledger.Reply) (ledger.Tx, error) {
	r.status(ledger.StateFinalizing, "Finalizing", "")

	status, _ := ledger.ReplyStatus(reply)
	state := ledger.StateSuccess
	if status == ledger.TxFailed {
		state = ledger.StateFailed
	}

	var tx ledger.Tx
	req := r.req
	err := r.e.store.Update(func(b *store.Batch) error {
		now := r.e.now()
		id := b.NextID(store.Txs)
		final := ledger.WithTxID(reply, id)
		tx = ledger.Tx{
			TxID:      id,
			RequestID: req.RequestID,
			UserID:    req.UserID,
			Kind:      req.Op.Kind(),
			Status:    status,
			Reply:     final,
			Ts:        now,
		}
		digest, err := TxDigest(tx)
		if err != nil {
			return err
		}
		prev, hash := r.e.hasher.Next(id, digest)
		tx.PrevHash = hex.EncodeToString(prev[:])
		tx.Hash = hex.EncodeToString(hash[:])
		if err := b.Put(store.Txs, id, tx); err != nil {
			return err
		}
		if err := b.PutMeta(auditTipMeta, hash[:]); err != nil {
			return err
		}
		b.OnCommit(func() { r.e.hasher.Advance(hash) })

		req.State = state
		req.Reply = final
		req.AddStatus(state.String(), "", now)
		return b.Put(store.Requests, req.RequestID, req)
	})
	if err != nil {
		return tx, err
	}
	r.req = req
	return tx, nil
}

func (r *run) emit(tx ledger.Tx) {
	r.e.metrics.TxsFinalized.WithLabelValues(string(tx.Kind), string(tx.Status)).Inc()
	if r.e.persistChan != nil {
		// A stalled audit worker must not stall finalization forever; the
		// worker backfills skipped Txs from the store.
		timer := time.NewTimer(r.e.cfg.PersistTimeout)
		select {
		case r.e.persistChan <- tx:
		case <-timer.C:
			r.e.metrics.PersistDrops.Inc()
			r.e.log.Warn().Uint64("tx_id", tx.TxID).Dur("waited", r.e.cfg.PersistTimeout).Msg("audit channel full, tx left for backfill")
		}
		timer.Stop()
	}
	if r.e.publishChan != nil {
		select {
		case r.e.publishChan <- tx:
		default:
			r.e.metrics.PublishDrops.Inc()
		}
	}
}

func (r *run) observe(kind, outcome string) {
	r.e.metrics.RequestsTotal.WithLabelValues(kind, outcome).Inc()
	r.e.metrics.RequestDuration.WithLabelValues(kind).Observe(time.Since(r.start).Seconds())
}
