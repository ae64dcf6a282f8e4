package ingestion_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"SwapLedger/internal/ingestion"
	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"
	"SwapLedger/internal/testutil"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeposit(t *testing.T) ledger.SolanaDeposit {
	t.Helper()
	sig, err := solana.NewWallet().PrivateKey.Sign([]byte("deposit"))
	require.NoError(t, err)
	return ledger.SolanaDeposit{
		Signature:  sig.String(),
		Sender:     solana.NewWallet().PublicKey().String(),
		Receiver:   solana.NewWallet().PublicKey().String(),
		Amount:     sdkmath.NewInt(1_500_000_000),
		Slot:       42,
		ObservedAt: time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestParseDepositRoundTrip(t *testing.T) {
	d := newDeposit(t)
	data, err := ingestion.EncodeDeposit(d)
	require.NoError(t, err)

	got, err := ingestion.ParseDeposit(data, time.Now())
	require.NoError(t, err)
	assert.Equal(t, d.Signature, got.Signature)
	assert.Equal(t, d.Sender, got.Sender)
	assert.True(t, d.Amount.Equal(got.Amount))
	assert.Equal(t, d.ObservedAt, got.ObservedAt)
	assert.Equal(t, uint64(42), got.Slot)
}

func TestParseDepositRejects(t *testing.T) {
	d := newDeposit(t)
	valid := func() map[string]string {
		return map[string]string{
			"signature": d.Signature,
			"sender":    d.Sender,
			"receiver":  d.Receiver,
			"amount":    "100",
		}
	}
	cases := map[string]func(m map[string]string){
		"bad signature": func(m map[string]string) { m["signature"] = "not-base58!" },
		"bad sender":    func(m map[string]string) { m["sender"] = "xyz" },
		"bad receiver":  func(m map[string]string) { m["receiver"] = "" },
		"bad mint":      func(m map[string]string) { m["mint"] = "0OIl" },
		"zero amount":   func(m map[string]string) { m["amount"] = "0" },
		"negative":      func(m map[string]string) { m["amount"] = "-5" },
		"fractional":    func(m map[string]string) { m["amount"] = "1.5" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := valid()
			mutate(m)
			_, err := ingestion.ParseDeposit(mustJSON(t, m), time.Now())
			assert.Error(t, err)
		})
	}

	_, err := ingestion.ParseDeposit([]byte("{"), time.Now())
	assert.Error(t, err)
}

func TestParseDepositDefaultsObservedAt(t *testing.T) {
	d := newDeposit(t)
	d.ObservedAt = time.Time{}
	data, err := ingestion.EncodeDeposit(d)
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := ingestion.ParseDeposit(data, now)
	require.NoError(t, err)
	assert.Equal(t, now, got.ObservedAt)
}

func TestIngestorRecordsOnceAndAcks(t *testing.T) {
	st := testutil.NewTestStore(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	events := make(chan ingestion.RawEvent, 4)
	ing := ingestion.NewDepositIngestor(events, st, metrics, zerolog.Nop())

	d := newDeposit(t)
	data, err := ingestion.EncodeDeposit(d)
	require.NoError(t, err)

	acks, naks := 0, 0
	raw := ingestion.RawEvent{
		Subject:   "swap.solana.deposits.wallet",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() { acks++ },
		NakFunc:   func() { naks++ },
	}
	events <- raw
	events <- raw
	events <- ingestion.RawEvent{Data: []byte(`{"signature":"bad"}`), AckFunc: func() { acks++ }, NakFunc: func() { naks++ }}
	close(events)

	require.NoError(t, ing.Run(context.Background()))
	assert.Equal(t, 3, acks)
	assert.Equal(t, 0, naks)

	got, ok, err := st.SolanaDeposit(d.Signature)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d.Amount.Equal(got.Amount))

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.SolanaDeposits.WithLabelValues("recorded")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.SolanaDeposits.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.SolanaDeposits.WithLabelValues("invalid")))
}

func TestManualInjectorQueuesValidDeposit(t *testing.T) {
	events := make(chan ingestion.RawEvent, 1)
	inj := ingestion.NewManualInjector(events)

	bad := newDeposit(t)
	bad.Amount = sdkmath.ZeroInt()
	require.Error(t, inj.InjectDeposit(context.Background(), bad))
	assert.Empty(t, events)

	d := newDeposit(t)
	require.NoError(t, inj.InjectDeposit(context.Background(), d))
	raw := <-events
	got, err := ingestion.ParseDeposit(raw.Data, time.Now())
	require.NoError(t, err)
	assert.Equal(t, d.Signature, got.Signature)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events <- raw
	assert.ErrorIs(t, inj.InjectDeposit(ctx, d), context.Canceled)
}

func TestTxSubject(t *testing.T) {
	tx := ledger.Tx{TxID: 7, Kind: ledger.OpSwap, Status: ledger.TxSuccess}
	assert.Equal(t, "swap.txs.swap.Success", ingestion.TxSubject(tx))
}
