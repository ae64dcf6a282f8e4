package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"SwapLedger/internal/ledger"
	"SwapLedger/internal/observability"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
)

// NativeLedger moves tokens that live on the native ledger chain.
type NativeLedger interface {
	// Transfer pays amount from the exchange to principal and returns the
	// ledger block index.
	Transfer(ctx context.Context, token ledger.Token, to string, amount sdkmath.Int) (uint64, error)
	// TransferFrom collects amount from principal under a prior approval.
	TransferFrom(ctx context.Context, token ledger.Token, from string, amount sdkmath.Int) (uint64, error)
	// VerifyTransfer confirms that block blockIndex moved amount from
	// principal to the exchange.
	VerifyTransfer(ctx context.Context, token ledger.Token, from string, amount sdkmath.Int, blockIndex uint64) error
}

// Bridge settles tokens that live on Solana.
type Bridge interface {
	ValidateAddress(address string) error
	VerifyInbound(ctx context.Context, token ledger.Token, amount sdkmath.Int, proof ledger.Proof) (string, error)
	SubmitOutbound(ctx context.Context, token ledger.Token, destination string, amount sdkmath.Int) (string, error)
}

// Settlement routes transfers to the collaborator owning the token's
// chain. Outbound legs run on a context detached from the caller so a
// cancelled request still reaches a terminal state.
type Settlement struct {
	Native  NativeLedger
	Bridge  Bridge
	Timeout time.Duration
	Metrics *observability.Metrics
}

// Receipt describes a consumed inbound deposit.
type Receipt struct {
	ProofKey string
	ChainRef string
	RefundTo string
}

// ValidateDestination checks that dest can receive token.
func (s *Settlement) ValidateDestination(token ledger.Token, dest string) error {
	switch token.Chain {
	case ledger.ChainIC:
		if dest == "" {
			return ledger.ErrValidation.Wrap("missing destination principal")
		}
		return nil
	case ledger.ChainSOL:
		if s.Bridge == nil {
			return ledger.ErrValidation.Wrap("cross-chain settlement is disabled")
		}
		if err := s.Bridge.ValidateAddress(dest); err != nil {
			return ledger.ErrValidation.Wrapf("destination %q: %v", dest, err)
		}
		return nil
	default:
		return ledger.ErrValidation.Wrapf("token %s cannot leave the exchange", token.Address())
	}
}

// ProofKeyHint returns the replay key a proof will consume, when it can be
// known before verification.
func ProofKeyHint(token ledger.Token, proof *ledger.Proof) (string, bool) {
	if proof == nil {
		return "", false
	}
	switch {
	case token.Chain == ledger.ChainIC && proof.BlockIndex != nil:
		return NativeProofKey(token.LedgerID, *proof.BlockIndex), true
	case token.Chain == ledger.ChainSOL && proof.TxSignature != "":
		return SolanaProofKey(proof.TxSignature), true
	}
	return "", false
}

// Receive verifies or collects an inbound deposit of amount.
func (s *Settlement) Receive(ctx context.Context, token ledger.Token, principal string, amount sdkmath.Int, proof *ledger.Proof) (Receipt, error) {
	chain := string(token.Chain)
	rc, err := s.receive(ctx, token, principal, amount, proof)
	if err != nil {
		s.Metrics.InboundVerified.WithLabelValues(chain, "failed").Inc()
		if !isTyped(err) {
			err = ledger.ErrProof.Wrap(err.Error())
		}
		return Receipt{}, err
	}
	s.Metrics.InboundVerified.WithLabelValues(chain, "ok").Inc()
	return rc, nil
}

func (s *Settlement) receive(ctx context.Context, token ledger.Token, principal string, amount sdkmath.Int, proof *ledger.Proof) (Receipt, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	switch token.Chain {
	case ledger.ChainIC:
		if s.Native == nil {
			return Receipt{}, ledger.ErrValidation.Wrap("native ledger is not configured")
		}
		if proof != nil && proof.BlockIndex != nil {
			if err := s.Native.VerifyTransfer(ctx, token, principal, amount, *proof.BlockIndex); err != nil {
				return Receipt{}, err
			}
			return Receipt{
				ProofKey: NativeProofKey(token.LedgerID, *proof.BlockIndex),
				ChainRef: blockRef(*proof.BlockIndex),
				RefundTo: principal,
			}, nil
		}
		block, err := s.Native.TransferFrom(ctx, token, principal, amount)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{
			ProofKey: NativeProofKey(token.LedgerID, block),
			ChainRef: blockRef(block),
			RefundTo: principal,
		}, nil

	case ledger.ChainSOL:
		if s.Bridge == nil {
			return Receipt{}, ledger.ErrValidation.Wrap("cross-chain settlement is disabled")
		}
		if proof == nil || proof.TxSignature == "" {
			return Receipt{}, ledger.ErrProof.Wrapf("%s deposit requires a transaction signature", token.Address())
		}
		sig, err := s.Bridge.VerifyInbound(ctx, token, amount, *proof)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{ProofKey: SolanaProofKey(sig), ChainRef: sig, RefundTo: proof.Sender}, nil

	default:
		return Receipt{}, ledger.ErrValidation.Wrapf("token %s cannot be deposited", token.Address())
	}
}

// Send pays amount minus the token's transfer fee to dest and returns
// the chain reference. Timeouts are failures.
func (s *Settlement) Send(ctx context.Context, token ledger.Token, dest string, amount sdkmath.Int) (string, error) {
	chain := string(token.Chain)
	ref, err := s.send(ctx, token, dest, amount)
	if err != nil {
		s.Metrics.OutboundTransfer.WithLabelValues(chain, "failed").Inc()
		if !isTyped(err) {
			err = ledger.ErrSettlement.Wrap(err.Error())
		}
		return "", err
	}
	s.Metrics.OutboundTransfer.WithLabelValues(chain, "ok").Inc()
	return ref, nil
}

func (s *Settlement) send(ctx context.Context, token ledger.Token, dest string, amount sdkmath.Int) (string, error) {
	net := amount
	if !token.Fee.IsNil() {
		net = amount.Sub(token.Fee)
	}
	if !net.IsPositive() {
		return "", ledger.ErrSettlement.Wrapf("amount %s does not cover the %s transfer fee", amount, token.Address())
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	switch token.Chain {
	case ledger.ChainIC:
		if s.Native == nil {
			return "", ledger.ErrSettlement.Wrap("native ledger is not configured")
		}
		block, err := s.Native.Transfer(ctx, token, dest, net)
		if err != nil {
			return "", ledger.ErrSettlement.Wrapf("transfer %s to %s: %v", token.Address(), dest, err)
		}
		return blockRef(block), nil
	case ledger.ChainSOL:
		if s.Bridge == nil {
			return "", ledger.ErrSettlement.Wrap("cross-chain settlement is disabled")
		}
		sig, err := s.Bridge.SubmitOutbound(ctx, token, dest, net)
		if err != nil {
			return "", ledger.ErrSettlement.Wrapf("transfer %s to %s: %v", token.Address(), dest, err)
		}
		return sig, nil
	default:
		return "", ledger.ErrSettlement.Wrapf("token %s cannot leave the exchange", token.Address())
	}
}

// detach keeps values but drops the caller's cancellation: a transfer
// that was started must be observed to completion or timeout.
func (s *Settlement) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func blockRef(block uint64) string {
	return "block:" + strconv.FormatUint(block, 10)
}

// isTyped reports whether err already carries a registered ledger code.
func isTyped(err error) bool {
	var coded *errorsmod.Error
	if errors.As(err, &coded) {
		return coded.Codespace() == ledger.Codespace
	}
	return false
}
