package ledger

import (
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Chain identifies where a token lives.
type Chain string

const (
	ChainIC  Chain = "IC"  // native ledger chain
	ChainSOL Chain = "SOL" // cross-chain, settled through the Solana bridge
	ChainLP  Chain = "LP"  // pool share, internal only
)

func (c Chain) Valid() bool {
	return c == ChainIC || c == ChainSOL || c == ChainLP
}

// wrappedSOLMint is the SPL mint of wrapped SOL; deposits against it are
// treated like native lamport transfers.
const wrappedSOLMint = "So11111111111111111111111111111111111111112"

// Token is immutable after creation except for Listed and Removed.
type Token struct {
	TokenID     uint64      `json:"token_id"`
	Chain       Chain       `json:"chain"`
	Symbol      string      `json:"symbol"`
	Name        string      `json:"name"`
	Decimals    uint8       `json:"decimals"`
	Fee         sdkmath.Int `json:"fee"`
	Listed      bool        `json:"listed"`
	Removed     bool        `json:"is_removed"`
	LedgerID    string      `json:"ledger_id,omitempty"`
	MintAddress string      `json:"mint_address,omitempty"`
	ProgramID   string      `json:"program_id,omitempty"`
	PoolID      uint64      `json:"pool_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (t *Token) SetID(id uint64) { t.TokenID = id }

// Address is the canonical CHAIN.SYMBOL reference.
func (t Token) Address() string {
	return string(t.Chain) + "." + t.Symbol
}

// IsNativeSOL reports whether outbound transfers are plain lamport moves.
func (t Token) IsNativeSOL() bool {
	return t.Chain == ChainSOL && (t.MintAddress == "" || t.MintAddress == wrappedSOLMint)
}

// Tradable reports whether the token can be paid into or out of a pool.
func (t Token) Tradable() bool {
	return t.Listed && !t.Removed && t.Chain != ChainLP
}

// ParseTokenRef splits "IC.ICP" into chain and symbol. A bare symbol
// returns an empty chain.
func ParseTokenRef(ref string) (Chain, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", ErrValidation.Wrap("empty token reference")
	}
	chain, symbol, found := strings.Cut(ref, ".")
	if !found {
		return "", ref, nil
	}
	c := Chain(strings.ToUpper(chain))
	if !c.Valid() || symbol == "" {
		return "", "", ErrValidation.Wrapf("malformed token reference %q", ref)
	}
	return c, symbol, nil
}

// LPSymbol names the pool share token for a pair.
func LPSymbol(symbol0, symbol1 string) string {
	return fmt.Sprintf("%s_%s", symbol0, symbol1)
}
