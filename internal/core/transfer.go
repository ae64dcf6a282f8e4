package core

import (
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"
)

// send moves LP tokens between users. Nothing leaves the exchange, so
// there is no settlement leg.
func (e *Engine) send(r *run, a ledger.SendArgs) (ledger.Reply, error) {
	r.status(ledger.StateVerifying, "Verifying", "")
	token, err := store.FindToken(e.store, a.Token)
	if err != nil {
		return nil, err
	}
	if token.Chain != ledger.ChainLP || token.Removed {
		return nil, ledger.ErrValidation.Wrapf("only LP tokens can be sent, got %s", token.Address())
	}
	if a.Amount.IsNil() || !a.Amount.IsPositive() {
		return nil, ledger.ErrZeroAmount.Wrap("send amount")
	}
	if a.To == "" {
		return nil, ledger.ErrValidation.Wrap("missing recipient")
	}
	if a.To == r.user.Principal {
		return nil, ledger.ErrValidation.Wrap("cannot send to yourself")
	}

	if err := r.lock(UserLock(r.user.UserID)); err != nil {
		return nil, err
	}
	r.note("Locked", "")

	err = r.commit(func(b *store.Batch) error {
		if err := e.debitLP(b, r.user.UserID, token.TokenID, a.Amount); err != nil {
			return err
		}
		to, err := e.ensureUserIn(b, a.To, "")
		if err != nil {
			return err
		}
		return e.creditLP(b, to.UserID, token.TokenID, a.Amount)
	})
	if err != nil {
		return nil, err
	}

	return ledger.SendReply{
		RequestID:   r.req.RequestID,
		Status:      ledger.TxSuccess,
		Token:       token.Address(),
		Amount:      a.Amount,
		ToPrincipal: a.To,
		Ts:          e.now(),
	}, nil
}

// claim retries the payout of an Unclaimed claim. A failed payout leaves
// the claim Unclaimed and fails the request without a Tx.
func (e *Engine) claim(r *run, a ledger.ClaimArgs) (ledger.Reply, error) {
	r.status(ledger.StateVerifying, "Verifying", "")
	c, err := e.claims.Get(a.ClaimID)
	if err != nil {
		return nil, err
	}
	if c.UserID != r.user.UserID {
		return nil, ledger.ErrNotFound.Wrapf("claim %d", a.ClaimID)
	}
	switch c.Status {
	case ledger.ClaimClaimed:
		return nil, ledger.ErrValidation.Wrapf("claim %d already claimed", c.ClaimID)
	case ledger.ClaimClaiming:
		return nil, ledger.ErrBusy.Wrapf("claim %d is being claimed", c.ClaimID)
	}

	if err := r.lock(UserLock(r.user.UserID), ClaimLock(c.ClaimID)); err != nil {
		return nil, err
	}
	r.note("Locked", "")

	r.status(ledger.StateTransferring, "Sending", "")
	res, err := e.claims.Resolve(r.ctx, c.ClaimID, r.user.UserID, r.req.RequestID, e.settle)
	if err != nil {
		r.note("Claim failed", err.Error())
		return nil, err
	}
	r.committed = true
	r.transferIDs = append(r.transferIDs, res.TransferID)

	return ledger.ClaimReply{
		RequestID:   r.req.RequestID,
		Status:      ledger.TxSuccess,
		ClaimID:     res.Claim.ClaimID,
		Token:       res.Token.Address(),
		Amount:      res.Claim.Amount,
		Destination: res.Claim.Destination,
		TransferIDs: r.transferIDs,
		Ts:          e.now(),
	}, nil
}
