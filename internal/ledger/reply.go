package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// TxStatus is the settled outcome of an operation.
type TxStatus string

const (
	TxSuccess TxStatus = "Success"
	TxFailed  TxStatus = "Failed"
)

// Reply is implemented only by the *Reply types in this file.
type Reply interface {
	ReplyKind() string
	isReply()
}

// PendingReply is held by every request until it reaches a terminal state.
type PendingReply struct{}

// FailedReply terminates requests that failed before any balance mutation.
// Refund legs for already-received deposits are listed here.
type FailedReply struct {
	RequestID   uint64   `json:"request_id"`
	Error       string   `json:"error"`
	TransferIDs []uint64 `json:"transfer_ids,omitempty"`
	ClaimIDs    []uint64 `json:"claim_ids,omitempty"`
}

// SwapCalc is the per-hop computation of a swap route. LPFee is in the
// pay token, ProtocolFee in the receive token.
type SwapCalc struct {
	PoolID         uint64      `json:"pool_id"`
	PayTokenID     uint64      `json:"pay_token_id"`
	PayAmount      sdkmath.Int `json:"pay_amount"`
	ReceiveTokenID uint64      `json:"receive_token_id"`
	ReceiveAmount  sdkmath.Int `json:"receive_amount"`
	GrossReceive   sdkmath.Int `json:"gross_receive_amount"`
	LPFee          sdkmath.Int `json:"lp_fee"`
	ProtocolFee    sdkmath.Int `json:"protocol_fee"`
	Price          float64     `json:"price"`
}

type SwapReply struct {
	TxID          uint64      `json:"tx_id"`
	RequestID     uint64      `json:"request_id"`
	Status        TxStatus    `json:"status"`
	PayToken      string      `json:"pay_token"`
	PayAmount     sdkmath.Int `json:"pay_amount"`
	ReceiveToken  string      `json:"receive_token"`
	ReceiveAmount sdkmath.Int `json:"receive_amount"`
	MidPrice      float64     `json:"mid_price"`
	Price         float64     `json:"price"`
	Slippage      float64     `json:"slippage"`
	Txs           []SwapCalc  `json:"txs"`
	TransferIDs   []uint64    `json:"transfer_ids"`
	ClaimIDs      []uint64    `json:"claim_ids"`
	Ts            time.Time   `json:"ts"`
}

type AddPoolReply struct {
	TxID          uint64      `json:"tx_id"`
	RequestID     uint64      `json:"request_id"`
	Status        TxStatus    `json:"status"`
	PoolID        uint64      `json:"pool_id"`
	Symbol        string      `json:"symbol"`
	Token0        string      `json:"token_0"`
	Amount0       sdkmath.Int `json:"amount_0"`
	Token1        string      `json:"token_1"`
	Amount1       sdkmath.Int `json:"amount_1"`
	LPFeeBps      uint16      `json:"lp_fee_bps"`
	LPTokenSymbol string      `json:"lp_token_symbol"`
	AddLPAmount   sdkmath.Int `json:"add_lp_token_amount"`
	TransferIDs   []uint64    `json:"transfer_ids"`
	ClaimIDs      []uint64    `json:"claim_ids"`
	Ts            time.Time   `json:"ts"`
}

type AddLiquidityReply struct {
	TxID        uint64      `json:"tx_id"`
	RequestID   uint64      `json:"request_id"`
	Status      TxStatus    `json:"status"`
	Symbol      string      `json:"symbol"`
	Token0      string      `json:"token_0"`
	Amount0     sdkmath.Int `json:"amount_0"`
	Token1      string      `json:"token_1"`
	Amount1     sdkmath.Int `json:"amount_1"`
	AddLPAmount sdkmath.Int `json:"add_lp_token_amount"`
	TransferIDs []uint64    `json:"transfer_ids"`
	ClaimIDs    []uint64    `json:"claim_ids"`
	Ts          time.Time   `json:"ts"`
}

type RemoveLiquidityReply struct {
	TxID           uint64      `json:"tx_id"`
	RequestID      uint64      `json:"request_id"`
	Status         TxStatus    `json:"status"`
	Symbol         string      `json:"symbol"`
	Token0         string      `json:"token_0"`
	Amount0        sdkmath.Int `json:"amount_0"`
	Token1         string      `json:"token_1"`
	Amount1        sdkmath.Int `json:"amount_1"`
	RemoveLPAmount sdkmath.Int `json:"remove_lp_token_amount"`
	TransferIDs    []uint64    `json:"transfer_ids"`
	ClaimIDs       []uint64    `json:"claim_ids"`
	Ts             time.Time   `json:"ts"`
}

type SendReply struct {
	TxID        uint64      `json:"tx_id"`
	RequestID   uint64      `json:"request_id"`
	Status      TxStatus    `json:"status"`
	Token       string      `json:"token"`
	Amount      sdkmath.Int `json:"amount"`
	ToPrincipal string      `json:"to_principal"`
	Ts          time.Time   `json:"ts"`
}

type ClaimReply struct {
	TxID        uint64      `json:"tx_id"`
	RequestID   uint64      `json:"request_id"`
	Status      TxStatus    `json:"status"`
	ClaimID     uint64      `json:"claim_id"`
	Token       string      `json:"token"`
	Amount      sdkmath.Int `json:"amount"`
	Destination string      `json:"destination"`
	TransferIDs []uint64    `json:"transfer_ids"`
	Ts          time.Time   `json:"ts"`
}

func (PendingReply) ReplyKind() string         { return "pending" }
func (FailedReply) ReplyKind() string          { return "failed" }
func (SwapReply) ReplyKind() string            { return string(OpSwap) }
func (AddPoolReply) ReplyKind() string         { return string(OpAddPool) }
func (AddLiquidityReply) ReplyKind() string    { return string(OpAddLiquidity) }
func (RemoveLiquidityReply) ReplyKind() string { return string(OpRemoveLiquidity) }
func (SendReply) ReplyKind() string            { return string(OpSend) }
func (ClaimReply) ReplyKind() string           { return string(OpClaim) }

func (PendingReply) isReply()         {}
func (FailedReply) isReply()          {}
func (SwapReply) isReply()            {}
func (AddPoolReply) isReply()         {}
func (AddLiquidityReply) isReply()    {}
func (RemoveLiquidityReply) isReply() {}
func (SendReply) isReply()            {}
func (ClaimReply) isReply()           {}

type replyEnvelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// MarshalReply encodes r with its kind tag.
func MarshalReply(r Reply) ([]byte, error) {
	if r == nil {
		r = PendingReply{}
	}
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(replyEnvelope{Kind: r.ReplyKind(), Body: body})
}

// UnmarshalReply decodes a tagged reply.
func UnmarshalReply(data []byte) (Reply, error) {
	if len(data) == 0 || string(data) == "null" {
		return PendingReply{}, nil
	}
	var env replyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	var (
		r   Reply
		err error
	)
	switch env.Kind {
	case "pending":
		r = PendingReply{}
	case "failed":
		var v FailedReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpSwap):
		var v SwapReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpAddPool):
		var v AddPoolReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpAddLiquidity):
		var v AddLiquidityReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpRemoveLiquidity):
		var v RemoveLiquidityReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpSend):
		var v SendReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	case string(OpClaim):
		var v ClaimReply
		err = json.Unmarshal(env.Body, &v)
		r = v
	default:
		return nil, fmt.Errorf("unknown reply kind %q", env.Kind)
	}
	return r, err
}

// ReplyStatus returns the settled status carried by a terminal reply.
func ReplyStatus(r Reply) (TxStatus, bool) {
	switch v := r.(type) {
	case SwapReply:
		return v.Status, true
	case AddPoolReply:
		return v.Status, true
	case AddLiquidityReply:
		return v.Status, true
	case RemoveLiquidityReply:
		return v.Status, true
	case SendReply:
		return v.Status, true
	case ClaimReply:
		return v.Status, true
	case FailedReply:
		return TxFailed, true
	default:
		return "", false
	}
}

// WithTxID returns a copy of r carrying txID.
func WithTxID(r Reply, txID uint64) Reply {
	switch v := r.(type) {
	case SwapReply:
		v.TxID = txID
		return v
	case AddPoolReply:
		v.TxID = txID
		return v
	case AddLiquidityReply:
		v.TxID = txID
		return v
	case RemoveLiquidityReply:
		v.TxID = txID
		return v
	case SendReply:
		v.TxID = txID
		return v
	case ClaimReply:
		v.TxID = txID
		return v
	default:
		return r
	}
}

// ReplyRefs returns the transfer and claim ids carried by a reply.
func ReplyRefs(r Reply) (transferIDs, claimIDs []uint64) {
	switch v := r.(type) {
	case SwapReply:
		return v.TransferIDs, v.ClaimIDs
	case AddPoolReply:
		return v.TransferIDs, v.ClaimIDs
	case AddLiquidityReply:
		return v.TransferIDs, v.ClaimIDs
	case RemoveLiquidityReply:
		return v.TransferIDs, v.ClaimIDs
	case ClaimReply:
		return v.TransferIDs, nil
	case FailedReply:
		return v.TransferIDs, v.ClaimIDs
	default:
		return nil, nil
	}
}
