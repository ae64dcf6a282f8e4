package query

import (
	"encoding/json"
	"time"
)

// Amount pairs the raw base-unit integer with its decimal rendering.
type Amount struct {
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

type TokenResponse struct {
	TokenID     uint64 `json:"token_id"`
	Address     string `json:"address"`
	Chain       string `json:"chain"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	Fee         Amount `json:"fee"`
	Listed      bool   `json:"listed"`
	LedgerID    string `json:"ledger_id,omitempty"`
	MintAddress string `json:"mint_address,omitempty"`
	PoolID      uint64 `json:"pool_id,omitempty"`
}

type PoolResponse struct {
	PoolID         uint64  `json:"pool_id"`
	Symbol         string  `json:"symbol"`
	Token0         string  `json:"token_0"`
	Token1         string  `json:"token_1"`
	Balance0       Amount  `json:"balance_0"`
	Balance1       Amount  `json:"balance_1"`
	Price          string  `json:"price"` // token_1 per token_0
	LPFeeBps       uint16  `json:"lp_fee_bps"`
	ProtocolFeeBps uint16  `json:"protocol_fee_bps"`
	LPFee0         Amount  `json:"lp_fee_0"`
	LPFee1         Amount  `json:"lp_fee_1"`
	LPToken        string  `json:"lp_token"`
	LPTotalSupply  Amount  `json:"lp_total_supply"`
	Volume24h      Amount  `json:"rolling_24h_volume"`
	LPFee24h       Amount  `json:"rolling_24h_lp_fee"`
	Swaps24h       uint64  `json:"rolling_24h_num_swaps"`
	APY24h         float64 `json:"rolling_24h_apy"`
	AsOfTxID       uint64  `json:"as_of_tx_id"`
}

type ClaimResponse struct {
	ClaimID     uint64    `json:"claim_id"`
	Token       string    `json:"token"`
	Amount      Amount    `json:"amount"`
	Destination string    `json:"destination"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	RequestID   uint64    `json:"request_id"`
	Attempts    []uint64  `json:"attempt_request_ids,omitempty"`
	CreatedAt   time.Time `json:"ts"`
}

// TxHistoryEntry is a row of the audit log.
type TxHistoryEntry struct {
	TxID      int64           `json:"tx_id"`
	RequestID int64           `json:"request_id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Reply     json.RawMessage `json:"reply"`
	Hash      string          `json:"hash"`
	Timestamp time.Time       `json:"ts"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy      bool          `json:"is_healthy"`
	TxsChecked     int           `json:"txs_checked"`
	HashChainBreak uint64        `json:"hash_chain_break,omitempty"`
	BreakReason    string        `json:"break_reason,omitempty"`
	AuditLag       uint64        `json:"audit_lag"`
	LPImbalances   []LPImbalance `json:"lp_imbalances,omitempty"`
}

// LPImbalance is a pool whose LP holdings do not sum to its total supply.
type LPImbalance struct {
	PoolID      uint64 `json:"pool_id"`
	TotalSupply string `json:"total_supply"`
	Held        string `json:"held"`
}
