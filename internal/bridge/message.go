package bridge

import (
	"encoding/json"

	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
)

// DepositMessage is what a depositor signs with their Solana key to bind
// an on-chain transfer to a swap request.
type DepositMessage struct {
	Token       string      `json:"token"`
	Amount      sdkmath.Int `json:"amount"`
	TxSignature string      `json:"tx_signature"`
	Sender      string      `json:"sender"`
	Timestamp   int64       `json:"timestamp"`
}

// NewDepositMessage builds the message for a proof.
func NewDepositMessage(token ledger.Token, amount sdkmath.Int, proof ledger.Proof) DepositMessage {
	return DepositMessage{
		Token:       token.Address(),
		Amount:      amount,
		TxSignature: proof.TxSignature,
		Sender:      proof.Sender,
		Timestamp:   proof.Timestamp,
	}
}

// Bytes is the canonical encoding that gets signed: compact JSON with
// fields in declaration order.
func (m DepositMessage) Bytes() []byte {
	b, _ := json.Marshal(m)
	return b
}
