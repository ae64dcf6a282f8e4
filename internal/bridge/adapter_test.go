package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type depositMap map[string]ledger.SolanaDeposit

func (m depositMap) SolanaDeposit(sig string) (ledger.SolanaDeposit, bool, error) {
	d, ok := m[sig]
	return d, ok, nil
}

// fakeNode answers a fixed set of JSON-RPC methods.
type fakeNode struct {
	mu      sync.Mutex
	methods []string
	fail    map[string]int  // method -> JSON-RPC error code
	missing map[string]bool // accounts getAccountInfo reports as absent
	sent    []string        // base64 transactions passed to sendTransaction
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var first string
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &first)
	}
	n.mu.Lock()
	n.methods = append(n.methods, req.Method)
	code, fail := n.fail[req.Method]
	missing := n.missing[first]
	if req.Method == "sendTransaction" {
		n.sent = append(n.sent, first)
	}
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case fail:
		resp["error"] = map[string]any{"code": code, "message": "Transaction simulation failed"}
	case req.Method == "getLatestBlockhash":
		resp["result"] = map[string]any{
			"context": map[string]any{"slot": 1},
			"value":   map[string]any{"blockhash": testHash.String(), "lastValidBlockHeight": 100},
		}
	case req.Method == "sendTransaction":
		resp["result"] = testSig.String()
	case req.Method == "getAccountInfo" && missing:
		resp["result"] = map[string]any{"context": map[string]any{"slot": 1}, "value": nil}
	case req.Method == "getAccountInfo":
		resp["result"] = map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"lamports": 2_039_280, "owner": solana.TokenProgramID.String(),
				"data": []string{"", "base64"}, "executable": false, "rentEpoch": 0,
			},
		}
	case req.Method == "getBalance":
		resp["result"] = map[string]any{"context": map[string]any{"slot": 1}, "value": 5_000_000}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

var (
	testHash = solana.Hash{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}
	testSig  = solana.Signature{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	solToken = ledger.Token{TokenID: 4, Chain: ledger.ChainSOL, Symbol: "SOL", Decimals: 9}
)

type fixture struct {
	adapter  *Adapter
	node     *fakeNode
	server   *httptest.Server
	deposits depositMap
	sender   *solana.Wallet
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		node:     &fakeNode{fail: map[string]int{}, missing: map[string]bool{}},
		deposits: depositMap{},
		sender:   solana.NewWallet(),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.server = httptest.NewServer(f.node)
	t.Cleanup(f.server.Close)

	cfg := DefaultConfig()
	cfg.RPCURL = f.server.URL
	cfg.WalletKey = solana.NewWallet().PrivateKey.String()
	cfg.RPCRate = 1000
	a, err := New(cfg, f.deposits, observability.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	require.NoError(t, err)
	a.SetClock(func() time.Time { return f.now })
	f.adapter = a
	return f
}

// lastSent decodes the most recent submitted transaction and returns the
// program id of each instruction.
func (f *fixture) lastSent(t *testing.T) []solana.PublicKey {
	t.Helper()
	f.node.mu.Lock()
	require.NotEmpty(t, f.node.sent)
	raw := f.node.sent[len(f.node.sent)-1]
	f.node.mu.Unlock()

	tx, err := solana.TransactionFromBase64(raw)
	require.NoError(t, err)
	var programs []solana.PublicKey
	for _, ix := range tx.Message.Instructions {
		pid, err := tx.Message.Program(ix.ProgramIDIndex)
		require.NoError(t, err)
		programs = append(programs, pid)
	}
	return programs
}

// signedProof records an observed deposit and returns a proof for it.
func (f *fixture) signedProof(t *testing.T, sig string, amount sdkmath.Int, ts time.Time) ledger.Proof {
	t.Helper()
	f.deposits[sig] = ledger.SolanaDeposit{
		Signature: sig,
		Sender:    f.sender.PublicKey().String(),
		Receiver:  f.adapter.Wallet().String(),
		Amount:    amount,
	}
	p := ledger.Proof{TxSignature: sig, Sender: f.sender.PublicKey().String(), Timestamp: ts.UnixMilli()}
	msgSig, err := f.sender.PrivateKey.Sign(NewDepositMessage(solToken, amount, p).Bytes())
	require.NoError(t, err)
	p.MessageSignature = msgSig.String()
	return p
}

func TestVerifyInboundAcceptsSignedObservedDeposit(t *testing.T) {
	f := newFixture(t)
	amount := sdkmath.NewInt(2_000_000)
	sig := testSig.String()

	p := f.signedProof(t, sig, amount, f.now.Add(-time.Minute))
	got, err := f.adapter.VerifyInbound(context.Background(), solToken, amount, p)
	require.NoError(t, err)
	assert.Equal(t, sig, got)
}

func TestVerifyInboundRejections(t *testing.T) {
	f := newFixture(t)
	amount := sdkmath.NewInt(2_000_000)
	sig := testSig.String()
	ctx := context.Background()

	stale := f.signedProof(t, sig, amount, f.now.Add(-10*time.Minute))
	_, err := f.adapter.VerifyInbound(ctx, solToken, amount, stale)
	assert.ErrorIs(t, err, ledger.ErrProof)

	future := f.signedProof(t, sig, amount, f.now.Add(time.Minute))
	_, err = f.adapter.VerifyInbound(ctx, solToken, amount, future)
	assert.ErrorIs(t, err, ledger.ErrProof)

	// signed for a different amount
	p := f.signedProof(t, sig, amount, f.now)
	_, err = f.adapter.VerifyInbound(ctx, solToken, amount.AddRaw(1), p)
	assert.ErrorIs(t, err, ledger.ErrProof)

	// valid signature, transfer not seen on chain
	p = f.signedProof(t, sig, amount, f.now)
	delete(f.deposits, sig)
	_, err = f.adapter.VerifyInbound(ctx, solToken, amount, p)
	assert.ErrorIs(t, err, ledger.ErrProof)

	p = f.signedProof(t, sig, amount, f.now)
	p.Sender = solana.NewWallet().PublicKey().String()
	_, err = f.adapter.VerifyInbound(ctx, solToken, amount, p)
	assert.ErrorIs(t, err, ledger.ErrProof)

	p = f.signedProof(t, sig, amount, f.now)
	p.Sender = "not-base58!"
	_, err = f.adapter.VerifyInbound(ctx, solToken, amount, p)
	assert.ErrorIs(t, err, ledger.ErrProof)
}

func TestBlockhashCacheAndSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dest := solana.NewWallet().PublicKey().String()

	_, err := f.adapter.SubmitOutbound(ctx, solToken, dest, sdkmath.NewInt(1_000))
	assert.Error(t, err, "no blockhash yet")
	assert.Error(t, f.adapter.Check(ctx))

	require.NoError(t, f.adapter.RefreshBlockhash(ctx))
	hash, age, ok := f.adapter.CachedBlockhash()
	require.True(t, ok)
	assert.Equal(t, testHash, hash)
	assert.Zero(t, age)
	assert.NoError(t, f.adapter.Check(ctx))

	sig, err := f.adapter.SubmitOutbound(ctx, solToken, dest, sdkmath.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, testSig.String(), sig)

	f.now = f.now.Add(2 * time.Minute)
	_, err = f.adapter.SubmitOutbound(ctx, solToken, dest, sdkmath.NewInt(1_000))
	assert.Error(t, err, "stale blockhash")
	assert.Contains(t, f.node.methods, "sendTransaction")
}

func TestSubmitOutboundSPL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.adapter.RefreshBlockhash(ctx))

	usdc := ledger.Token{Chain: ledger.ChainSOL, Symbol: "USDC", Decimals: 6, MintAddress: solana.NewWallet().PublicKey().String()}
	_, err := f.adapter.SubmitOutbound(ctx, usdc, solana.NewWallet().PublicKey().String(), sdkmath.NewInt(5_000_000))
	require.NoError(t, err)
	ixs := f.lastSent(t)
	require.Len(t, ixs, 1)
	assert.Equal(t, solana.TokenProgramID, ixs[0])

	usdc.ProgramID = solana.NewWallet().PublicKey().String()
	_, err = f.adapter.SubmitOutbound(ctx, usdc, solana.NewWallet().PublicKey().String(), sdkmath.NewInt(5_000_000))
	assert.Error(t, err)
}

func TestSubmitOutboundSPLCreatesMissingTokenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.adapter.RefreshBlockhash(ctx))

	mint := solana.NewWallet().PublicKey()
	dest := solana.NewWallet().PublicKey()
	ata, _, err := solana.FindAssociatedTokenAddress(dest, mint)
	require.NoError(t, err)
	f.node.missing[ata.String()] = true

	usdc := ledger.Token{Chain: ledger.ChainSOL, Symbol: "USDC", Decimals: 6, MintAddress: mint.String()}
	_, err = f.adapter.SubmitOutbound(ctx, usdc, dest.String(), sdkmath.NewInt(5_000_000))
	require.NoError(t, err)

	ixs := f.lastSent(t)
	require.Len(t, ixs, 2)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ixs[0])
	assert.Equal(t, solana.TokenProgramID, ixs[1])

	// a lookup failure aborts the payout instead of guessing
	f.node.fail["getAccountInfo"] = -32005
	_, err = f.adapter.SubmitOutbound(ctx, usdc, dest.String(), sdkmath.NewInt(5_000_000))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRPCErrorsAreTyped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.adapter.RefreshBlockhash(ctx))

	f.node.fail["sendTransaction"] = -32002
	_, err := f.adapter.SubmitOutbound(ctx, solToken, solana.NewWallet().PublicKey().String(), sdkmath.NewInt(1_000))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	var re *RPCError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, -32002, re.Code)

	bal, err := f.adapter.WalletBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), bal)

	f.server.Close()
	err = f.adapter.RefreshBlockhash(ctx)
	assert.Equal(t, KindNetwork, KindOf(err))

	var syntax json.SyntaxError
	assert.Equal(t, KindEncoding, KindOf(classify("getBalance", &syntax)))
}

func TestValidateAddress(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.adapter.ValidateAddress(solana.NewWallet().PublicKey().String()))
	assert.Error(t, f.adapter.ValidateAddress("0xabc"))
	assert.Error(t, f.adapter.ValidateAddress(solana.PublicKey{}.String()))
}
