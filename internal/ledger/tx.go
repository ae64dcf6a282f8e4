package ledger

import (
	"encoding/json"
	"time"

	sdkmath "cosmossdk.io/math"
)

// Tx is the immutable record of a settled operation. The reply carries
// amounts, fee breakdown, transfer ids and claim ids.
type Tx struct {
	TxID      uint64
	RequestID uint64
	UserID    uint64
	Kind      OpKind
	Status    TxStatus
	Reply     Reply
	PrevHash  string
	Hash      string
	Ts        time.Time
}

func (t *Tx) SetID(id uint64) { t.TxID = id }

type txJSON struct {
	TxID      uint64          `json:"tx_id"`
	RequestID uint64          `json:"request_id"`
	UserID    uint64          `json:"user_id"`
	Kind      OpKind          `json:"kind"`
	Status    TxStatus        `json:"status"`
	Reply     json.RawMessage `json:"reply"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
	Ts        time.Time       `json:"ts"`
}

func (t Tx) MarshalJSON() ([]byte, error) {
	reply, err := MarshalReply(t.Reply)
	if err != nil {
		return nil, err
	}
	return json.Marshal(txJSON{
		TxID: t.TxID, RequestID: t.RequestID, UserID: t.UserID, Kind: t.Kind,
		Status: t.Status, Reply: reply, PrevHash: t.PrevHash, Hash: t.Hash, Ts: t.Ts,
	})
}

func (t *Tx) UnmarshalJSON(data []byte) error {
	var aux txJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	reply, err := UnmarshalReply(aux.Reply)
	if err != nil {
		return err
	}
	*t = Tx{
		TxID: aux.TxID, RequestID: aux.RequestID, UserID: aux.UserID, Kind: aux.Kind,
		Status: aux.Status, Reply: reply, PrevHash: aux.PrevHash, Hash: aux.Hash, Ts: aux.Ts,
	}
	return nil
}

// Direction of a transfer relative to the exchange.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Transfer is one movement of tokens across the exchange boundary.
// Inbound transfers are unique per ProofKey.
type Transfer struct {
	TransferID uint64      `json:"transfer_id"`
	RequestID  uint64      `json:"request_id"`
	Direction  Direction   `json:"direction"`
	TokenID    uint64      `json:"token_id"`
	Amount     sdkmath.Int `json:"amount"`
	ProofKey   string      `json:"proof_key,omitempty"`
	ChainRef   string      `json:"chain_ref"`
	Party      string      `json:"party"`
	Ts         time.Time   `json:"ts"`
}

func (t *Transfer) SetID(id uint64) { t.TransferID = id }

// SolanaDeposit is an on-chain transfer to the exchange wallet, as
// reported by the chain watcher.
type SolanaDeposit struct {
	DepositID  uint64      `json:"deposit_id"`
	Signature  string      `json:"signature"`
	Sender     string      `json:"sender"`
	Receiver   string      `json:"receiver"`
	Mint       string      `json:"mint,omitempty"`
	Amount     sdkmath.Int `json:"amount"`
	Slot       uint64      `json:"slot"`
	ObservedAt time.Time   `json:"observed_at"`
}

func (d *SolanaDeposit) SetID(id uint64) { d.DepositID = id }
