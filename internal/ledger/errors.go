package ledger

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace for every registered ledger error.
const Codespace = "swapledger"

// Sentinel errors. Wrap with Wrapf to attach detail; errors.Is matches on
// codespace and code.
var (
	ErrValidation   = errorsmod.Register(Codespace, 2, "validation failed")
	ErrNotFound     = errorsmod.Register(Codespace, 3, "not found")
	ErrMaintenance  = errorsmod.Register(Codespace, 4, "system is in maintenance mode")
	ErrUnauthorized = errorsmod.Register(Codespace, 5, "unauthorized")
	ErrProof        = errorsmod.Register(Codespace, 6, "invalid transfer proof")
	ErrReplay       = errorsmod.Register(Codespace, 7, "transfer proof already consumed")
	ErrBusy         = errorsmod.Register(Codespace, 8, "busy")
	ErrComputation  = errorsmod.Register(Codespace, 9, "computation failed")
	ErrZeroAmount   = errorsmod.Register(Codespace, 10, "amount cannot be zero")
	ErrZeroReserves = errorsmod.Register(Codespace, 11, "pool has zero reserves")
	ErrSlippage     = errorsmod.Register(Codespace, 12, "slippage exceeded")
	ErrOverflow     = errorsmod.Register(Codespace, 13, "arithmetic overflow")
	ErrSettlement   = errorsmod.Register(Codespace, 14, "settlement failed")
	ErrCorrupt      = errorsmod.Register(Codespace, 15, "stored value could not be decoded")
)

// ErrorKind is the caller-facing error category.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindProof       ErrorKind = "proof"
	KindConcurrency ErrorKind = "concurrency"
	KindComputation ErrorKind = "computation"
	KindSettlement  ErrorKind = "settlement"
	KindInternal    ErrorKind = "internal"
)

// KindOf classifies err into the error taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrMaintenance), errors.Is(err, ErrUnauthorized):
		return KindValidation
	case errors.Is(err, ErrProof), errors.Is(err, ErrReplay):
		return KindProof
	case errors.Is(err, ErrBusy):
		return KindConcurrency
	case errors.Is(err, ErrComputation), errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrZeroReserves), errors.Is(err, ErrSlippage), errors.Is(err, ErrOverflow):
		return KindComputation
	case errors.Is(err, ErrSettlement):
		return KindSettlement
	default:
		return KindInternal
	}
}
