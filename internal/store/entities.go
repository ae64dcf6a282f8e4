package store

import (
	"errors"
	"strconv"

	"SwapLedger/internal/ledger"
)

// FindToken resolves "CHAIN.SYMBOL" or a bare symbol. A bare symbol must
// match exactly one chain.
func FindToken(r Reader, ref string) (ledger.Token, error) {
	chain, symbol, err := ledger.ParseTokenRef(ref)
	if err != nil {
		return ledger.Token{}, err
	}
	chains := []ledger.Chain{chain}
	if chain == "" {
		chains = []ledger.Chain{ledger.ChainIC, ledger.ChainSOL, ledger.ChainLP}
	}

	var found []ledger.Token
	for _, c := range chains {
		id, ok, err := Lookup(r, ByAddress, string(c)+"."+symbol)
		if err != nil {
			return ledger.Token{}, err
		}
		if !ok {
			continue
		}
		t, ok, err := Get[ledger.Token](r, Tokens, id)
		if err != nil {
			return ledger.Token{}, err
		}
		if ok {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return ledger.Token{}, ledger.ErrNotFound.Wrapf("token %s", ref)
	case 1:
		return found[0], nil
	default:
		return ledger.Token{}, ledger.ErrValidation.Wrapf("token symbol %s is ambiguous, use CHAIN.SYMBOL", symbol)
	}
}

// MustToken loads a token by id, treating absence as an error.
func MustToken(r Reader, id uint64) (ledger.Token, error) {
	t, ok, err := Get[ledger.Token](r, Tokens, id)
	if err != nil {
		return t, err
	}
	if !ok {
		return t, ledger.ErrNotFound.Wrapf("token %d", id)
	}
	return t, nil
}

// PoolForPair finds the pool trading a and b in either orientation.
func PoolForPair(r Reader, a, b uint64) (ledger.Pool, bool, error) {
	id, ok, err := Lookup(r, ByPair, ledger.PairKey(a, b))
	if err != nil || !ok {
		return ledger.Pool{}, false, err
	}
	return Get[ledger.Pool](r, Pools, id)
}

// UserByPrincipal finds a user by external identity.
func UserByPrincipal(r Reader, principal string) (ledger.User, bool, error) {
	id, ok, err := Lookup(r, ByPrincipal, principal)
	if err != nil || !ok {
		return ledger.User{}, false, err
	}
	return Get[ledger.User](r, Users, id)
}

// UserByReferralCode finds the owner of a referral code.
func UserByReferralCode(r Reader, code string) (ledger.User, bool, error) {
	id, ok, err := Lookup(r, ByReferral, code)
	if err != nil || !ok {
		return ledger.User{}, false, err
	}
	return Get[ledger.User](r, Users, id)
}

// LPBalanceOf returns the user's entry for an LP token, if any.
func LPBalanceOf(r Reader, userID, lpTokenID uint64) (ledger.LPBalance, bool, error) {
	id, ok, err := Lookup(r, ByLPKey, ledger.LPKey(userID, lpTokenID))
	if err != nil || !ok {
		return ledger.LPBalance{}, false, err
	}
	return Get[ledger.LPBalance](r, LPBalances, id)
}

// LPBalancesForUser lists every LP entry held by a user.
func LPBalancesForUser(r Reader, userID uint64) ([]ledger.LPBalance, error) {
	return membersOf[ledger.LPBalance](r, UserLP, strconv.FormatUint(userID, 10), LPBalances)
}

// LPBalancesForToken lists every LP entry of one LP token.
func LPBalancesForToken(r Reader, lpTokenID uint64) ([]ledger.LPBalance, error) {
	return membersOf[ledger.LPBalance](r, PoolLP, strconv.FormatUint(lpTokenID, 10), LPBalances)
}

// ClaimsForUser lists a user's claims, oldest first.
func ClaimsForUser(r Reader, userID uint64) ([]ledger.Claim, error) {
	return membersOf[ledger.Claim](r, UserClaims, strconv.FormatUint(userID, 10), Claims)
}

func membersOf[T any](r Reader, set Set, key string, m Map) ([]T, error) {
	ids, err := Members(r, set, key)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, ok, err := Get[T](r, m, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// PutLPBalance writes an LP entry, creating it and its indexes on first use.
func PutLPBalance(b *Batch, bal *ledger.LPBalance) error {
	if bal.LPBalanceID != 0 {
		return b.Put(LPBalances, bal.LPBalanceID, bal)
	}
	id, err := b.Insert(LPBalances, bal)
	if err != nil {
		return err
	}
	if err := b.ClaimIndex(ByLPKey, ledger.LPKey(bal.UserID, bal.TokenID), id); err != nil {
		return err
	}
	if err := b.AddMember(UserLP, strconv.FormatUint(bal.UserID, 10), id); err != nil {
		return err
	}
	return b.AddMember(PoolLP, strconv.FormatUint(bal.TokenID, 10), id)
}

// InsertClaim stores a new claim and indexes it under its owner.
func InsertClaim(b *Batch, c *ledger.Claim) (uint64, error) {
	id, err := b.Insert(Claims, c)
	if err != nil {
		return 0, err
	}
	return id, b.AddMember(UserClaims, strconv.FormatUint(c.UserID, 10), id)
}

// InsertToken stores a token and claims its CHAIN.SYMBOL address.
func InsertToken(b *Batch, t *ledger.Token) (uint64, error) {
	if _, taken, err := Lookup(b, ByAddress, t.Address()); err != nil {
		return 0, err
	} else if taken {
		return 0, ledger.ErrValidation.Wrapf("token %s already exists", t.Address())
	}
	id, err := b.Insert(Tokens, t)
	if err != nil {
		return 0, err
	}
	return id, b.ClaimIndex(ByAddress, t.Address(), id)
}

// SolanaDeposit implements the bridge's deposit lookup.
func (s *Store) SolanaDeposit(signature string) (ledger.SolanaDeposit, bool, error) {
	id, ok, err := Lookup(s, BySignature, signature)
	if err != nil || !ok {
		return ledger.SolanaDeposit{}, false, err
	}
	return Get[ledger.SolanaDeposit](s, SolanaDeposits, id)
}

// RecordSolanaDeposit stores an observed deposit once per signature.
// Returns false when the signature was already recorded.
func (s *Store) RecordSolanaDeposit(d ledger.SolanaDeposit) (bool, error) {
	created := false
	err := s.Update(func(b *Batch) error {
		if _, ok, err := Lookup(b, BySignature, d.Signature); err != nil || ok {
			return err
		}
		id, err := b.Insert(SolanaDeposits, &d)
		if err != nil {
			return err
		}
		created = true
		return b.ClaimIndex(BySignature, d.Signature, id)
	})
	if err != nil && errors.Is(err, ErrExists) {
		return false, nil
	}
	return created, err
}

// Transfers loads transfers by id, skipping ids that do not exist.
func (s *Store) Transfers(ids []uint64) ([]ledger.Transfer, error) {
	out := make([]ledger.Transfer, 0, len(ids))
	for _, id := range ids {
		t, ok, err := Get[ledger.Transfer](s, Transfers, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// TxsFrom returns up to limit Txs with id >= from.
func (s *Store) TxsFrom(from uint64, limit int) ([]ledger.Tx, error) {
	return Range[ledger.Tx](s, Txs, from, limit)
}
