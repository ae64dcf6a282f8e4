package ledger

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// OpKind tags the closed set of user operations.
type OpKind string

const (
	OpAddPool         OpKind = "add_pool"
	OpAddLiquidity    OpKind = "add_liquidity"
	OpRemoveLiquidity OpKind = "remove_liquidity"
	OpSwap            OpKind = "swap"
	OpSend            OpKind = "send"
	OpClaim           OpKind = "claim"
)

// Operation is implemented only by the *Args types in this file.
type Operation interface {
	Kind() OpKind
	isOperation()
}

// Proof references an inbound deposit. Native ledger deposits carry a
// block index; Solana deposits carry the transaction signature plus a
// message signed by the sender's key.
type Proof struct {
	BlockIndex       *uint64 `json:"block_index,omitempty"`
	TxSignature      string  `json:"tx_signature,omitempty"`
	Sender           string  `json:"sender,omitempty"`
	MessageSignature string  `json:"message_signature,omitempty"`
	Timestamp        int64   `json:"timestamp,omitempty"` // unix millis
}

type AddPoolArgs struct {
	Token0   string      `json:"token_0"`
	Amount0  sdkmath.Int `json:"amount_0"`
	Proof0   *Proof      `json:"proof_0,omitempty"`
	Token1   string      `json:"token_1"`
	Amount1  sdkmath.Int `json:"amount_1"`
	Proof1   *Proof      `json:"proof_1,omitempty"`
	LPFeeBps *uint16     `json:"lp_fee_bps,omitempty"`
}

type AddLiquidityArgs struct {
	Token0  string      `json:"token_0"`
	Amount0 sdkmath.Int `json:"amount_0"`
	Proof0  *Proof      `json:"proof_0,omitempty"`
	Token1  string      `json:"token_1"`
	Amount1 sdkmath.Int `json:"amount_1"`
	Proof1  *Proof      `json:"proof_1,omitempty"`
}

type RemoveLiquidityArgs struct {
	Token0         string      `json:"token_0"`
	Token1         string      `json:"token_1"`
	RemoveLPAmount sdkmath.Int `json:"remove_lp_token_amount"`
	// Destinations for SOL-chain sides.
	Address0 string `json:"address_0,omitempty"`
	Address1 string `json:"address_1,omitempty"`
}

type SwapArgs struct {
	PayToken       string             `json:"pay_token"`
	PayAmount      sdkmath.Int        `json:"pay_amount"`
	PayProof       *Proof             `json:"pay_proof,omitempty"`
	ReceiveToken   string             `json:"receive_token"`
	ReceiveAmount  *sdkmath.Int       `json:"receive_amount,omitempty"`
	ReceiveAddress string             `json:"receive_address,omitempty"`
	MaxSlippage    *sdkmath.LegacyDec `json:"max_slippage,omitempty"`
	ReferredBy     string             `json:"referred_by,omitempty"`
}

type SendArgs struct {
	Token  string      `json:"token"`
	Amount sdkmath.Int `json:"amount"`
	To     string      `json:"to_principal"`
}

type ClaimArgs struct {
	ClaimID uint64 `json:"claim_id"`
}

func (AddPoolArgs) Kind() OpKind         { return OpAddPool }
func (AddLiquidityArgs) Kind() OpKind    { return OpAddLiquidity }
func (RemoveLiquidityArgs) Kind() OpKind { return OpRemoveLiquidity }
func (SwapArgs) Kind() OpKind            { return OpSwap }
func (SendArgs) Kind() OpKind            { return OpSend }
func (ClaimArgs) Kind() OpKind           { return OpClaim }

func (AddPoolArgs) isOperation()         {}
func (AddLiquidityArgs) isOperation()    {}
func (RemoveLiquidityArgs) isOperation() {}
func (SwapArgs) isOperation()            {}
func (SendArgs) isOperation()            {}
func (ClaimArgs) isOperation()           {}

type opEnvelope struct {
	Kind OpKind          `json:"kind"`
	Args json.RawMessage `json:"args"`
}

// MarshalOperation encodes op with its kind tag.
func MarshalOperation(op Operation) ([]byte, error) {
	if op == nil {
		return []byte("null"), nil
	}
	args, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(opEnvelope{Kind: op.Kind(), Args: args})
}

// UnmarshalOperation decodes a tagged operation.
func UnmarshalOperation(data []byte) (Operation, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env opEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return DecodeOperation(env.Kind, env.Args)
}

// DecodeOperation decodes the args payload of the given kind.
func DecodeOperation(kind OpKind, args []byte) (Operation, error) {
	switch kind {
	case OpAddPool:
		var a AddPoolArgs
		err := json.Unmarshal(args, &a)
		return a, err
	case OpAddLiquidity:
		var a AddLiquidityArgs
		err := json.Unmarshal(args, &a)
		return a, err
	case OpRemoveLiquidity:
		var a RemoveLiquidityArgs
		err := json.Unmarshal(args, &a)
		return a, err
	case OpSwap:
		var a SwapArgs
		err := json.Unmarshal(args, &a)
		return a, err
	case OpSend:
		var a SendArgs
		err := json.Unmarshal(args, &a)
		return a, err
	case OpClaim:
		var a ClaimArgs
		err := json.Unmarshal(args, &a)
		return a, err
	default:
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
}
