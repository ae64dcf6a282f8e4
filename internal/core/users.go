package core

import (
	"crypto/rand"
	"errors"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

const (
	referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralLen      = 8
	referralAttempts = 16
)

// EnsureUser returns the user for principal, creating it on first
// interaction. A valid referral code is only recorded at creation.
func (e *Engine) EnsureUser(principal, referralCode string) (ledger.User, error) {
	if principal == "" {
		return ledger.User{}, ledger.ErrUnauthorized.Wrap("missing principal")
	}
	var u ledger.User
	err := e.store.Update(func(b *store.Batch) error {
		var err error
		u, err = e.ensureUserIn(b, principal, referralCode)
		return err
	})
	return u, err
}

// UserByPrincipal looks up an existing user.
func (e *Engine) UserByPrincipal(principal string) (ledger.User, error) {
	u, ok, err := store.UserByPrincipal(e.store, principal)
	if err != nil {
		return u, err
	}
	if !ok {
		return u, ledger.ErrNotFound.Wrapf("user %s", principal)
	}
	return u, nil
}

// SetFeeLevel grants a protocol fee discount until expiry.
func (e *Engine) SetFeeLevel(principal string, level uint8, days int) (ledger.User, error) {
	if level > ledger.MaxFeeLevel {
		return ledger.User{}, ledger.ErrValidation.Wrapf("fee level %d above %d", level, ledger.MaxFeeLevel)
	}
	var u ledger.User
	err := e.store.Update(func(b *store.Batch) error {
		var err error
		if u, err = e.ensureUserIn(b, principal, ""); err != nil {
			return err
		}
		u.FeeLevel = level
		u.FeeLevelExpiresAt = nil
		if days > 0 {
			exp := e.now().AddDate(0, 0, days)
			u.FeeLevelExpiresAt = &exp
		}
		return b.Put(store.Users, u.UserID, u)
	})
	return u, err
}

func (e *Engine) ensureUserIn(b *store.Batch, principal, referralCode string) (ledger.User, error) {
	now := e.now()
	u, ok, err := store.UserByPrincipal(b, principal)
	if err != nil {
		return u, err
	}
	if ok {
		u.LastLoginAt = now
		return u, b.Put(store.Users, u.UserID, u)
	}

	u = ledger.User{Principal: principal, CreatedAt: now, LastLoginAt: now}
	if referralCode != "" {
		ref, found, err := store.UserByReferralCode(b, referralCode)
		if err != nil {
			return u, err
		}
		if found {
			exp := now.Add(e.cfg.ReferralTTL)
			u.ReferredBy = ref.UserID
			u.ReferredByExpiresAt = &exp
		} else {
			e.log.Debug().Str("referral_code", referralCode).Msg("unknown referral code ignored")
		}
	}

	id, err := b.Insert(store.Users, &u)
	if err != nil {
		return u, err
	}
	if err := b.ClaimIndex(store.ByPrincipal, principal, id); err != nil {
		return u, err
	}
	for i := 0; ; i++ {
		if i == referralAttempts {
			return u, ledger.ErrComputation.Wrap("could not generate a unique referral code")
		}
		code, err := newReferralCode()
		if err != nil {
			return u, err
		}
		err = b.ClaimIndex(store.ByReferral, code, id)
		if isExists(err) {
			continue
		}
		if err != nil {
			return u, err
		}
		u.ReferralCode = code
		break
	}
	if err := b.Put(store.Users, id, u); err != nil {
		return u, err
	}
	b.OnCommit(func() {
		e.log.Info().Uint64("user_id", id).Str("principal", principal).Msg("user created")
	})
	return u, nil
}

func newReferralCode() (string, error) {
	buf := make([]byte, referralLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, c := range buf {
		buf[i] = referralAlphabet[int(c)%len(referralAlphabet)]
	}
	return string(buf), nil
}

// creditLP adds amount to the user's LP entry, creating it if needed.
func (e *Engine) creditLP(b *store.Batch, userID, lpTokenID uint64, amount sdkmath.Int) error {
	bal, ok, err := store.LPBalanceOf(b, userID, lpTokenID)
	if err != nil {
		return err
	}
	if !ok {
		bal = ledger.LPBalance{UserID: userID, TokenID: lpTokenID, Amount: sdkmath.ZeroInt()}
	}
	bal.Amount = bal.Amount.Add(amount)
	bal.UpdatedAt = e.now()
	return store.PutLPBalance(b, &bal)
}

// debitLP removes amount from the user's LP entry.
func (e *Engine) debitLP(b *store.Batch, userID, lpTokenID uint64, amount sdkmath.Int) error {
	bal, ok, err := store.LPBalanceOf(b, userID, lpTokenID)
	if err != nil {
		return err
	}
	if !ok || bal.Amount.LT(amount) {
		have := sdkmath.ZeroInt()
		if ok {
			have = bal.Amount
		}
		return ledger.ErrValidation.Wrapf("insufficient LP balance: have %s, need %s", have, amount)
	}
	bal.Amount = bal.Amount.Sub(amount)
	bal.UpdatedAt = e.now()
	return store.PutLPBalance(b, &bal)
}

func isExists(err error) bool {
	return err != nil && errors.Is(err, store.ErrExists)
}
