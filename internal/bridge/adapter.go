// Package bridge settles SOL-chain tokens: it verifies signed deposit
// proofs against observed chain transfers and submits outbound transfers
// signed by the exchange wallet.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const wrappedSOLMint = "So11111111111111111111111111111111111111112"

type Config struct {
	RPCURL     string
	WalletKey  string // base58 private key of the exchange wallet
	Commitment rpc.CommitmentType

	ProofMaxAge     time.Duration // oldest accepted proof timestamp
	ProofMaxSkew    time.Duration // how far in the future a timestamp may be
	BlockhashMaxAge time.Duration // cached blockhash older than this is not used

	RPCRate  float64 // requests per second
	RPCBurst int
}

func DefaultConfig() Config {
	return Config{
		Commitment:      rpc.CommitmentConfirmed,
		ProofMaxAge:     5 * time.Minute,
		ProofMaxSkew:    30 * time.Second,
		BlockhashMaxAge: 60 * time.Second,
		RPCRate:         5,
		RPCBurst:        5,
	}
}

// DepositSource returns transfers to the exchange wallet observed on chain.
type DepositSource interface {
	SolanaDeposit(signature string) (ledger.SolanaDeposit, bool, error)
}

// Adapter implements the engine's Bridge for Solana.
type Adapter struct {
	cfg      Config
	client   *rpc.Client
	limiter  *rate.Limiter
	key      solana.PrivateKey
	wallet   solana.PublicKey
	deposits DepositSource
	metrics  *observability.Metrics
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	blockhash solana.Hash
	fetchedAt time.Time
}

func New(cfg Config, deposits DepositSource, m *observability.Metrics, log zerolog.Logger) (*Adapter, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("bridge: rpc url is required")
	}
	key, err := solana.PrivateKeyFromBase58(cfg.WalletKey)
	if err != nil {
		return nil, fmt.Errorf("bridge: wallet key: %w", err)
	}
	def := DefaultConfig()
	if cfg.Commitment == "" {
		cfg.Commitment = def.Commitment
	}
	if cfg.ProofMaxAge <= 0 {
		cfg.ProofMaxAge = def.ProofMaxAge
	}
	if cfg.ProofMaxSkew <= 0 {
		cfg.ProofMaxSkew = def.ProofMaxSkew
	}
	if cfg.BlockhashMaxAge <= 0 {
		cfg.BlockhashMaxAge = def.BlockhashMaxAge
	}
	if cfg.RPCRate <= 0 {
		cfg.RPCRate = def.RPCRate
	}
	if cfg.RPCBurst <= 0 {
		cfg.RPCBurst = def.RPCBurst
	}

	a := &Adapter{
		cfg:      cfg,
		client:   rpc.New(cfg.RPCURL),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RPCRate), cfg.RPCBurst),
		key:      key,
		wallet:   key.PublicKey(),
		deposits: deposits,
		metrics:  m,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	a.log.Info().Str("wallet", a.wallet.String()).Str("rpc", cfg.RPCURL).Msg("solana bridge configured")
	return a, nil
}

// SetClock replaces the time source.
func (a *Adapter) SetClock(now func() time.Time) { a.now = now }

// Wallet is the exchange's deposit and payout address.
func (a *Adapter) Wallet() solana.PublicKey { return a.wallet }

// ValidateAddress requires a base58 ed25519 public key.
func (a *Adapter) ValidateAddress(address string) error {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return err
	}
	if pk.IsZero() {
		return fmt.Errorf("zero address")
	}
	return nil
}

// VerifyInbound checks a signed deposit proof and returns the transaction
// signature that identifies it.
func (a *Adapter) VerifyInbound(_ context.Context, tok ledger.Token, amount sdkmath.Int, proof ledger.Proof) (string, error) {
	sender, err := solana.PublicKeyFromBase58(proof.Sender)
	if err != nil {
		return "", ledger.ErrProof.Wrapf("sender address %q: %v", proof.Sender, err)
	}
	if _, err := solana.SignatureFromBase58(proof.TxSignature); err != nil {
		return "", ledger.ErrProof.Wrapf("transaction signature: %v", err)
	}

	ts := time.UnixMilli(proof.Timestamp)
	now := a.now()
	if ts.Before(now.Add(-a.cfg.ProofMaxAge)) {
		return "", ledger.ErrProof.Wrapf("proof timestamp %s is older than %s", ts.UTC().Format(time.RFC3339), a.cfg.ProofMaxAge)
	}
	if ts.After(now.Add(a.cfg.ProofMaxSkew)) {
		return "", ledger.ErrProof.Wrapf("proof timestamp %s is in the future", ts.UTC().Format(time.RFC3339))
	}

	msgSig, err := solana.SignatureFromBase58(proof.MessageSignature)
	if err != nil {
		return "", ledger.ErrProof.Wrapf("message signature: %v", err)
	}
	msg := NewDepositMessage(tok, amount, proof).Bytes()
	if !msgSig.Verify(sender, msg) {
		return "", ledger.ErrProof.Wrap("message signature does not match sender")
	}

	dep, ok, err := a.deposits.SolanaDeposit(proof.TxSignature)
	if err != nil {
		return "", fmt.Errorf("load deposit %s: %w", proof.TxSignature, err)
	}
	if !ok {
		return "", ledger.ErrProof.Wrapf("transaction %s not observed yet", proof.TxSignature)
	}
	switch {
	case dep.Sender != proof.Sender:
		return "", ledger.ErrProof.Wrapf("transaction %s was sent by %s", proof.TxSignature, dep.Sender)
	case dep.Receiver != a.wallet.String():
		return "", ledger.ErrProof.Wrapf("transaction %s did not pay the exchange wallet", proof.TxSignature)
	case !dep.Amount.Equal(amount):
		return "", ledger.ErrProof.Wrapf("transaction %s moved %s, expected %s", proof.TxSignature, dep.Amount, amount)
	case !mintMatches(tok, dep.Mint):
		return "", ledger.ErrProof.Wrapf("transaction %s moved mint %q, expected %s", proof.TxSignature, dep.Mint, tok.Address())
	}
	return proof.TxSignature, nil
}

func mintMatches(tok ledger.Token, mint string) bool {
	if tok.IsNativeSOL() {
		return mint == "" || mint == wrappedSOLMint
	}
	return mint == tok.MintAddress
}

// CachedBlockhash returns the last fetched blockhash and its age.
func (a *Adapter) CachedBlockhash() (solana.Hash, time.Duration, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fetchedAt.IsZero() {
		return solana.Hash{}, 0, false
	}
	return a.blockhash, a.now().Sub(a.fetchedAt), true
}

// RefreshBlockhash fetches the latest blockhash into the cache.
func (a *Adapter) RefreshBlockhash(ctx context.Context) error {
	var res *rpc.GetLatestBlockhashResult
	err := a.call(ctx, "getLatestBlockhash", func(ctx context.Context) error {
		var err error
		res, err = a.client.GetLatestBlockhash(ctx, a.cfg.Commitment)
		return err
	})
	if err != nil {
		a.metrics.BlockhashRefreshErrors.Inc()
		return err
	}
	if res == nil || res.Value == nil {
		a.metrics.BlockhashRefreshErrors.Inc()
		return &RPCError{Method: "getLatestBlockhash", Kind: KindEncoding, Err: fmt.Errorf("empty result")}
	}

	a.mu.Lock()
	a.blockhash = res.Value.Blockhash
	a.fetchedAt = a.now()
	a.mu.Unlock()
	a.metrics.BlockhashAge.Set(0)
	return nil
}

// RunBlockhashRefresher keeps the blockhash cache warm until ctx is
// cancelled. The request path only ever reads the cache.
func (a *Adapter) RunBlockhashRefresher(ctx context.Context, interval time.Duration) {
	if err := a.RefreshBlockhash(ctx); err != nil {
		a.log.Warn().Err(err).Msg("initial blockhash fetch failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshBlockhash(ctx); err != nil {
				a.log.Warn().Err(err).Msg("blockhash refresh failed")
			}
			if _, age, ok := a.CachedBlockhash(); ok {
				a.metrics.BlockhashAge.Set(age.Seconds())
			}
		}
	}
}

// SubmitOutbound signs and sends a transfer of amount base units from
// the exchange wallet to destination.
func (a *Adapter) SubmitOutbound(ctx context.Context, tok ledger.Token, destination string, amount sdkmath.Int) (string, error) {
	dest, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return "", fmt.Errorf("destination %q: %w", destination, err)
	}
	if amount.IsNil() || !amount.IsPositive() || !amount.IsUint64() {
		return "", fmt.Errorf("amount %s out of range", amount)
	}
	hash, age, ok := a.CachedBlockhash()
	if !ok {
		return "", fmt.Errorf("no recent blockhash cached")
	}
	if age > a.cfg.BlockhashMaxAge {
		return "", fmt.Errorf("cached blockhash is %s old", age.Truncate(time.Second))
	}

	ixs, err := a.transferInstructions(ctx, tok, dest, amount.Uint64())
	if err != nil {
		return "", err
	}
	tx, err := solana.NewTransaction(ixs, hash, solana.TransactionPayer(a.wallet))
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(a.wallet) {
			return &a.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	var sig solana.Signature
	err = a.call(ctx, "sendTransaction", func(ctx context.Context) error {
		var err error
		sig, err = a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: a.cfg.Commitment,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	a.log.Info().
		Str("token", tok.Address()).
		Str("destination", destination).
		Str("amount", amount.String()).
		Str("signature", sig.String()).
		Msg("outbound transfer submitted")
	return sig.String(), nil
}

// transferInstructions builds the payout instructions. An SPL payout to
// a wallet without an associated token account creates it first, paid
// for by the exchange wallet.
func (a *Adapter) transferInstructions(ctx context.Context, tok ledger.Token, dest solana.PublicKey, amount uint64) ([]solana.Instruction, error) {
	if tok.IsNativeSOL() {
		return []solana.Instruction{system.NewTransferInstruction(amount, a.wallet, dest).Build()}, nil
	}
	if tok.ProgramID != "" && tok.ProgramID != solana.TokenProgramID.String() {
		return nil, fmt.Errorf("token program %s is not supported", tok.ProgramID)
	}
	mint, err := solana.PublicKeyFromBase58(tok.MintAddress)
	if err != nil {
		return nil, fmt.Errorf("mint %q: %w", tok.MintAddress, err)
	}
	source, _, err := solana.FindAssociatedTokenAddress(a.wallet, mint)
	if err != nil {
		return nil, err
	}
	target, _, err := solana.FindAssociatedTokenAddress(dest, mint)
	if err != nil {
		return nil, err
	}
	exists, err := a.accountExists(ctx, target)
	if err != nil {
		return nil, err
	}

	var ixs []solana.Instruction
	if !exists {
		ixs = append(ixs, associatedtokenaccount.NewCreateInstruction(a.wallet, dest, mint).Build())
		a.log.Info().
			Str("owner", dest.String()).
			Str("mint", mint.String()).
			Str("account", target.String()).
			Msg("creating recipient token account")
	}
	ixs = append(ixs, token.NewTransferCheckedInstruction(amount, tok.Decimals, source, mint, target, a.wallet, nil).Build())
	return ixs, nil
}

// accountExists reports whether account is allocated on chain.
func (a *Adapter) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	var found bool
	err := a.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		_, err := a.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: a.cfg.Commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

type balanceValue struct {
	Value uint64 `json:"value"`
}

// WalletBalance returns the exchange wallet's lamport balance.
func (a *Adapter) WalletBalance(ctx context.Context) (uint64, error) {
	var out balanceValue
	err := a.Call(ctx, "getBalance", []any{a.wallet.String(), map[string]any{"commitment": a.cfg.Commitment}}, &out)
	return out.Value, err
}

// Call issues a raw JSON-RPC request; out receives the result object.
func (a *Adapter) Call(ctx context.Context, method string, params []any, out any) error {
	return a.call(ctx, method, func(ctx context.Context) error {
		return a.client.RPCCallForInto(ctx, out, method, params)
	})
}

// call rate limits fn and classifies its error.
func (a *Adapter) call(ctx context.Context, method string, fn func(context.Context) error) error {
	if err := a.limiter.Wait(ctx); err != nil {
		a.metrics.RPCCalls.WithLabelValues(method, string(KindNetwork)).Inc()
		return &RPCError{Method: method, Kind: KindNetwork, Err: err}
	}
	err := classify(method, fn(ctx))
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	a.metrics.RPCCalls.WithLabelValues(method, outcome).Inc()
	return err
}

// Check reports whether the blockhash cache is fresh enough to pay out.
func (a *Adapter) Check(context.Context) error {
	_, age, ok := a.CachedBlockhash()
	if !ok {
		return fmt.Errorf("no blockhash cached")
	}
	if age > a.cfg.BlockhashMaxAge {
		return fmt.Errorf("blockhash is %s old", age.Truncate(time.Second))
	}
	return nil
}
