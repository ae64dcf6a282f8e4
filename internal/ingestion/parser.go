package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// depositJSON is the notification the chain watcher publishes for every
// confirmed transfer into the exchange wallet.
type depositJSON struct {
	Signature   string `json:"signature"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Mint        string `json:"mint,omitempty"`
	Amount      string `json:"amount"`
	Slot        uint64 `json:"slot"`
	BlockTimeMs int64  `json:"block_time_ms,omitempty"`
}

// ParseDeposit decodes and validates a deposit notification. observedAt
// is used when the watcher did not supply a block time.
func ParseDeposit(data []byte, observedAt time.Time) (ledger.SolanaDeposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return ledger.SolanaDeposit{}, fmt.Errorf("parse deposit: %w", err)
	}

	if _, err := solana.SignatureFromBase58(j.Signature); err != nil {
		return ledger.SolanaDeposit{}, fmt.Errorf("parse signature: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(j.Sender); err != nil {
		return ledger.SolanaDeposit{}, fmt.Errorf("parse sender: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(j.Receiver); err != nil {
		return ledger.SolanaDeposit{}, fmt.Errorf("parse receiver: %w", err)
	}
	if j.Mint != "" {
		if _, err := solana.PublicKeyFromBase58(j.Mint); err != nil {
			return ledger.SolanaDeposit{}, fmt.Errorf("parse mint: %w", err)
		}
	}

	amount, ok := sdkmath.NewIntFromString(j.Amount)
	if !ok {
		return ledger.SolanaDeposit{}, fmt.Errorf("parse amount %q", j.Amount)
	}
	if !amount.IsPositive() {
		return ledger.SolanaDeposit{}, fmt.Errorf("amount must be positive, got %s", amount)
	}

	ts := observedAt.UTC()
	if j.BlockTimeMs > 0 {
		ts = time.UnixMilli(j.BlockTimeMs).UTC()
	}

	return ledger.SolanaDeposit{
		Signature:  j.Signature,
		Sender:     j.Sender,
		Receiver:   j.Receiver,
		Mint:       j.Mint,
		Amount:     amount,
		Slot:       j.Slot,
		ObservedAt: ts,
	}, nil
}

// EncodeDeposit is the inverse of ParseDeposit.
func EncodeDeposit(d ledger.SolanaDeposit) ([]byte, error) {
	j := depositJSON{
		Signature: d.Signature,
		Sender:    d.Sender,
		Receiver:  d.Receiver,
		Mint:      d.Mint,
		Amount:    d.Amount.String(),
		Slot:      d.Slot,
	}
	if !d.ObservedAt.IsZero() {
		j.BlockTimeMs = d.ObservedAt.UnixMilli()
	}
	return json.Marshal(j)
}
