package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrorKind classifies RPC failures.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"    // transport, timeout, HTTP status
	KindEncoding   ErrorKind = "encoding"   // request or response could not be (de)serialised
	KindValidation ErrorKind = "validation" // the node returned a JSON-RPC error object
)

// RPCError is returned by every call to the Solana node.
type RPCError struct {
	Method string
	Kind   ErrorKind
	Code   int // JSON-RPC error code, validation errors only
	Err    error
}

func (e *RPCError) Error() string {
	if e.Kind == KindValidation {
		return fmt.Sprintf("solana rpc %s: %s error %d: %v", e.Method, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("solana rpc %s: %s error: %v", e.Method, e.Kind, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// KindOf returns the kind of an RPC error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var re *RPCError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var re *RPCError
	if errors.As(err, &re) {
		return err
	}

	out := &RPCError{Method: method, Err: err}
	var (
		rpcErr    *jsonrpc.RPCError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		urlErr    *url.Error
		netErr    net.Error
	)
	switch {
	case errors.As(err, &rpcErr):
		out.Kind = KindValidation
		out.Code = rpcErr.Code
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		out.Kind = KindEncoding
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.As(err, &urlErr), errors.As(err, &netErr):
		out.Kind = KindNetwork
	default:
		// solana-go reports non-2xx responses and unreadable bodies as
		// plain errors; both are transport problems from our side.
		out.Kind = KindNetwork
	}
	return out
}
