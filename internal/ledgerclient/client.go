// Package ledgerclient talks to the native token ledgers over NATS
// request/reply. Each ledger is served under <prefix>.<ledger_id>.
package ledgerclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SwapLedger/internal/ledger"

	sdkmath "cosmossdk.io/math"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const DefaultSubjectPrefix = "swap.ledger.native"

// Requester is the part of *nats.Conn the client uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Client implements the engine's NativeLedger.
type Client struct {
	nc      Requester
	prefix  string
	account string // the exchange's account on every ledger
	log     zerolog.Logger
}

func New(nc Requester, prefix, account string, log zerolog.Logger) *Client {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Client{nc: nc, prefix: prefix, account: account, log: log}
}

// TransferRequest is the wire body of every call.
type TransferRequest struct {
	From       string      `json:"from,omitempty"`
	To         string      `json:"to,omitempty"`
	Amount     sdkmath.Int `json:"amount"`
	Fee        sdkmath.Int `json:"fee"`
	BlockIndex *uint64     `json:"block_index,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// TransferResponse carries the ledger block or the ledger's error.
type TransferResponse struct {
	BlockIndex uint64 `json:"block_index"`
	Error      string `json:"error,omitempty"`
}

// ErrRejected wraps errors reported by the ledger itself.
var ErrRejected = errors.New("ledger rejected request")

func (c *Client) Transfer(ctx context.Context, tok ledger.Token, to string, amount sdkmath.Int) (uint64, error) {
	return c.do(ctx, tok, "transfer", TransferRequest{From: c.account, To: to, Amount: amount, Fee: tok.Fee})
}

func (c *Client) TransferFrom(ctx context.Context, tok ledger.Token, from string, amount sdkmath.Int) (uint64, error) {
	return c.do(ctx, tok, "transfer_from", TransferRequest{From: from, To: c.account, Amount: amount, Fee: tok.Fee})
}

func (c *Client) VerifyTransfer(ctx context.Context, tok ledger.Token, from string, amount sdkmath.Int, blockIndex uint64) error {
	block, err := c.do(ctx, tok, "verify", TransferRequest{From: from, To: c.account, Amount: amount, Fee: tok.Fee, BlockIndex: &blockIndex})
	if err != nil {
		return err
	}
	if block != blockIndex {
		return fmt.Errorf("%w: verified block %d, asked for %d", ErrRejected, block, blockIndex)
	}
	return nil
}

// Subject returns the request subject for op on tok's ledger.
func (c *Client) Subject(tok ledger.Token, op string) string {
	return fmt.Sprintf("%s.%s.%s", c.prefix, tok.LedgerID, op)
}

func (c *Client) do(ctx context.Context, tok ledger.Token, op string, req TransferRequest) (uint64, error) {
	if tok.LedgerID == "" {
		return 0, fmt.Errorf("token %s has no ledger id", tok.Address())
	}
	req.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", op, err)
	}

	subject := c.Subject(tok, op)
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		c.log.Warn().Err(err).Str("subject", subject).Msg("ledger request failed")
		return 0, fmt.Errorf("%s %s: %w", op, tok.Address(), err)
	}
	var resp TransferResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return 0, fmt.Errorf("decode %s reply: %w", op, err)
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	return resp.BlockIndex, nil
}
