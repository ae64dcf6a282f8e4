// Package claims keeps compensation records for funds the exchange
// received but could not deliver. A claim is resolved by retrying the
// outbound transfer on the owner's request; claims never expire.
package claims

import (
	"context"
	"strings"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sender performs the outbound leg of a resolution.
type Sender interface {
	Send(ctx context.Context, token ledger.Token, dest string, amount sdkmath.Int) (string, error)
}

// Book creates, lists and resolves claims.
type Book struct {
	store   *store.Store
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewBook(s *store.Store, log zerolog.Logger, m *observability.Metrics) *Book {
	if m == nil {
		m = observability.NewMetrics(prometheus.NewRegistry())
	}
	return &Book{store: s, log: log, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the time source.
func (k *Book) SetClock(now func() time.Time) { k.now = now }

// New is the input to Create.
type New struct {
	UserID      uint64
	TokenID     uint64
	Amount      sdkmath.Int
	Destination string
	Reason      string
	RequestID   uint64
	TransferIDs []uint64
}

// Create records an Unclaimed claim inside the caller's batch.
func (k *Book) Create(b *store.Batch, n New) (uint64, error) {
	if n.Amount.IsNil() || !n.Amount.IsPositive() {
		return 0, ledger.ErrZeroAmount.Wrap("claim amount")
	}
	now := k.now()
	c := ledger.Claim{
		UserID:      n.UserID,
		TokenID:     n.TokenID,
		Amount:      n.Amount,
		Destination: n.Destination,
		Reason:      n.Reason,
		Status:      ledger.ClaimUnclaimed,
		RequestID:   n.RequestID,
		TransferIDs: n.TransferIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := store.InsertClaim(b, &c)
	if err != nil {
		return 0, err
	}
	b.OnCommit(func() {
		k.metrics.ClaimsCreated.WithLabelValues(claimKind(n.Reason)).Inc()
		k.log.Warn().
			Uint64("claim_id", id).
			Uint64("user_id", n.UserID).
			Uint64("token_id", n.TokenID).
			Str("amount", n.Amount.String()).
			Str("reason", n.Reason).
			Msg("claim created")
	})
	return id, nil
}

// Get loads one claim.
func (k *Book) Get(claimID uint64) (ledger.Claim, error) {
	c, ok, err := store.Get[ledger.Claim](k.store, store.Claims, claimID)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, ledger.ErrNotFound.Wrapf("claim %d", claimID)
	}
	return c, nil
}

// ListForUser returns a user's claims, oldest first.
func (k *Book) ListForUser(userID uint64) ([]ledger.Claim, error) {
	return store.ClaimsForUser(k.store, userID)
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Claim      ledger.Claim
	Token      ledger.Token
	TransferID uint64
}

// Resolve moves the claim to Claiming, pays it out and marks it Claimed.
// Any failure of the transfer returns it to Unclaimed.
func (k *Book) Resolve(ctx context.Context, claimID, userID, requestID uint64, send Sender) (Resolution, error) {
	var (
		c     ledger.Claim
		token ledger.Token
	)
	err := k.store.Update(func(b *store.Batch) error {
		var ok bool
		var err error
		c, ok, err = store.Get[ledger.Claim](b, store.Claims, claimID)
		if err != nil {
			return err
		}
		if !ok || c.UserID != userID {
			return ledger.ErrNotFound.Wrapf("claim %d", claimID)
		}
		switch c.Status {
		case ledger.ClaimClaimed:
			return ledger.ErrValidation.Wrapf("claim %d already claimed", claimID)
		case ledger.ClaimClaiming:
			return ledger.ErrBusy.Wrapf("claim %d is being claimed", claimID)
		}
		if token, err = store.MustToken(b, c.TokenID); err != nil {
			return err
		}
		c.Status = ledger.ClaimClaiming
		c.Attempts = append(c.Attempts, requestID)
		c.UpdatedAt = k.now()
		return b.Put(store.Claims, c.ClaimID, c)
	})
	if err != nil {
		return Resolution{}, err
	}

	ref, sendErr := send.Send(ctx, token, c.Destination, c.Amount)

	var transferID uint64
	err = k.store.Update(func(b *store.Batch) error {
		cur, ok, err := store.Get[ledger.Claim](b, store.Claims, claimID)
		if err != nil {
			return err
		}
		if !ok {
			return ledger.ErrNotFound.Wrapf("claim %d", claimID)
		}
		cur.UpdatedAt = k.now()
		if sendErr != nil {
			cur.Status = ledger.ClaimUnclaimed
			return b.Put(store.Claims, cur.ClaimID, cur)
		}
		t := ledger.Transfer{
			RequestID: requestID,
			Direction: ledger.Outbound,
			TokenID:   cur.TokenID,
			Amount:    cur.Amount,
			ChainRef:  ref,
			Party:     cur.Destination,
			Ts:        cur.UpdatedAt,
		}
		if transferID, err = b.Insert(store.Transfers, &t); err != nil {
			return err
		}
		cur.Status = ledger.ClaimClaimed
		cur.TransferIDs = append(cur.TransferIDs, transferID)
		c = cur
		return b.Put(store.Claims, cur.ClaimID, cur)
	})
	if sendErr != nil {
		k.metrics.ClaimsResolved.WithLabelValues("failed").Inc()
		k.log.Warn().Err(sendErr).Uint64("claim_id", claimID).Msg("claim payout failed")
		if err != nil {
			k.log.Error().Err(err).Uint64("claim_id", claimID).Msg("failed to release claim")
		}
		return Resolution{}, sendErr
	}
	if err != nil {
		// The payout went through; leave the claim in Claiming so it
		// cannot be paid twice.
		k.log.Error().Err(err).Uint64("claim_id", claimID).Str("chain_ref", ref).Msg("claim paid but not recorded")
		return Resolution{}, err
	}
	k.metrics.ClaimsResolved.WithLabelValues("claimed").Inc()
	return Resolution{Claim: c, Token: token, TransferID: transferID}, nil
}

// Reconcile returns claims left in Claiming by a crash to Unclaimed.
func (k *Book) Reconcile() (int, error) {
	var stuck []ledger.Claim
	err := store.Scan(k.store, store.Claims, 0, func(_ uint64, c ledger.Claim) (bool, error) {
		if c.Status == ledger.ClaimClaiming {
			stuck = append(stuck, c)
		}
		return true, nil
	})
	if err != nil || len(stuck) == 0 {
		return 0, err
	}
	err = k.store.Update(func(b *store.Batch) error {
		for _, c := range stuck {
			c.Status = ledger.ClaimUnclaimed
			c.UpdatedAt = k.now()
			if err := b.Put(store.Claims, c.ClaimID, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	k.log.Warn().Int("claims", len(stuck)).Msg("claims reset from Claiming to Unclaimed")
	return len(stuck), nil
}

func claimKind(reason string) string {
	if strings.HasPrefix(reason, "refund") {
		return "refund"
	}
	return "payout"
}
