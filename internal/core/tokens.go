package core

import (
	"strings"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/store"

	sdkmath "cosmossdk.io/math"
)

// AddToken registers a native-ledger or Solana token.
func (e *Engine) AddToken(t ledger.Token) (ledger.Token, error) {
	if e.store.Maintenance() {
		return t, ledger.ErrMaintenance
	}
	t.Symbol = strings.TrimSpace(t.Symbol)
	switch {
	case t.Symbol == "" || strings.Contains(t.Symbol, "."):
		return t, ledger.ErrValidation.Wrapf("invalid symbol %q", t.Symbol)
	case t.Chain == ledger.ChainIC && t.LedgerID == "":
		return t, ledger.ErrValidation.Wrap("native ledger token requires a ledger id")
	case t.Chain == ledger.ChainSOL:
		if t.MintAddress != "" && e.settle.Bridge != nil {
			if err := e.settle.Bridge.ValidateAddress(t.MintAddress); err != nil {
				return t, ledger.ErrValidation.Wrapf("mint address: %v", err)
			}
		}
	case t.Chain == ledger.ChainLP:
		return t, ledger.ErrValidation.Wrap("LP tokens are created with their pool")
	case !t.Chain.Valid():
		return t, ledger.ErrValidation.Wrapf("unknown chain %q", t.Chain)
	}
	if t.Fee.IsNil() {
		t.Fee = sdkmath.ZeroInt()
	}
	if t.Fee.IsNegative() {
		return t, ledger.ErrValidation.Wrap("negative transfer fee")
	}
	if t.Name == "" {
		t.Name = t.Symbol
	}
	t.TokenID = 0
	t.Listed = true
	t.Removed = false
	t.PoolID = 0
	t.CreatedAt = e.now()

	err := e.store.Update(func(b *store.Batch) error {
		_, err := store.InsertToken(b, &t)
		return err
	})
	if err != nil {
		return t, err
	}
	e.log.Info().Uint64("token_id", t.TokenID).Str("token", t.Address()).Msg("token added")
	return t, nil
}

// SetTokenListed toggles whether a token can be traded.
func (e *Engine) SetTokenListed(ref string, listed bool) (ledger.Token, error) {
	var t ledger.Token
	err := e.store.Update(func(b *store.Batch) error {
		var err error
		if t, err = store.FindToken(b, ref); err != nil {
			return err
		}
		if t.Removed && listed {
			return ledger.ErrValidation.Wrapf("token %s was removed", t.Address())
		}
		t.Listed = listed
		return b.Put(store.Tokens, t.TokenID, t)
	})
	return t, err
}

// RemoveToken retires a token for good. Its id and address stay reserved
// and existing claims in it remain payable; it can no longer be traded.
func (e *Engine) RemoveToken(ref string) (ledger.Token, error) {
	var t ledger.Token
	err := e.store.Update(func(b *store.Batch) error {
		var err error
		if t, err = store.FindToken(b, ref); err != nil {
			return err
		}
		if t.Chain == ledger.ChainLP {
			return ledger.ErrValidation.Wrapf("LP token %s is owned by its pool", t.Address())
		}
		t.Listed = false
		t.Removed = true
		return b.Put(store.Tokens, t.TokenID, t)
	})
	if err == nil {
		e.log.Info().Uint64("token_id", t.TokenID).Str("token", t.Address()).Msg("token removed")
	}
	return t, err
}

// tradableToken resolves ref and requires it to be listed and not LP.
func tradableToken(r store.Reader, ref string) (ledger.Token, error) {
	t, err := store.FindToken(r, ref)
	if err != nil {
		return t, err
	}
	if !t.Tradable() {
		return t, ledger.ErrValidation.Wrapf("token %s is not tradable", t.Address())
	}
	return t, nil
}

// pair is a pool with its tokens in pool order. flipped reports that the
// caller named them the other way round.
type pair struct {
	pool    ledger.Pool
	token0  ledger.Token
	token1  ledger.Token
	flipped bool
}

func resolvePair(r store.Reader, ref0, ref1 string) (pair, error) {
	a, err := tradableToken(r, ref0)
	if err != nil {
		return pair{}, err
	}
	b, err := tradableToken(r, ref1)
	if err != nil {
		return pair{}, err
	}
	p, ok, err := store.PoolForPair(r, a.TokenID, b.TokenID)
	if err != nil {
		return pair{}, err
	}
	if !ok {
		return pair{}, ledger.ErrNotFound.Wrapf("pool %s/%s", a.Address(), b.Address())
	}
	if p.TokenID0 == a.TokenID {
		return pair{pool: p, token0: a, token1: b}, nil
	}
	return pair{pool: p, token0: b, token1: a, flipped: true}, nil
}

func (p pair) symbol() string {
	return ledger.LPSymbol(p.token0.Symbol, p.token1.Symbol)
}
