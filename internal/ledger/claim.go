package ledger

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type ClaimStatus string

const (
	ClaimUnclaimed ClaimStatus = "Unclaimed"
	ClaimClaiming  ClaimStatus = "Claiming"
	ClaimClaimed   ClaimStatus = "Claimed"
)

// Claim is a compensation obligation for funds received but not delivered.
// Claims never expire.
type Claim struct {
	ClaimID     uint64      `json:"claim_id"`
	UserID      uint64      `json:"user_id"`
	TokenID     uint64      `json:"token_id"`
	Amount      sdkmath.Int `json:"amount"`
	Destination string      `json:"destination"`
	Reason      string      `json:"reason"`
	Status      ClaimStatus `json:"status"`
	RequestID   uint64      `json:"request_id"`
	Attempts    []uint64    `json:"attempt_request_ids,omitempty"`
	TransferIDs []uint64    `json:"transfer_ids,omitempty"`
	CreatedAt   time.Time   `json:"ts"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (c *Claim) SetID(id uint64) { c.ClaimID = id }
