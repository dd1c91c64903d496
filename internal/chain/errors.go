package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gateway-fm/txdispatch/internal/rpc"
)

// Reason classifies why a node rejected a transaction.
type Reason string

const (
	ReasonNonceTooLow       Reason = "nonce-too-low"
	ReasonInsufficientFunds Reason = "insufficient-funds"
	ReasonUnderpriced       Reason = "underpriced"
	ReasonOutOfGas          Reason = "out-of-gas"
	ReasonAlreadyKnown      Reason = "already-known"
	ReasonRejected          Reason = "rejected"
)

// SubmissionError is a permanent rejection reported by the node.
type SubmissionError struct {
	Reason Reason
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected (%s): %v", e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransportError is a network or timeout failure talking to the node.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// ReasonOf returns the rejection reason of err, or "" if err is not a
// SubmissionError.
func ReasonOf(err error) Reason {
	var se *SubmissionError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ""
}

// classify maps an rpc error to the gateway taxonomy. JSON-RPC error objects
// are node decisions; everything else is transport.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		return &SubmissionError{Reason: reasonFromMessage(rpcErr.Message), Err: err}
	}
	return &TransportError{Op: op, Err: err}
}

func reasonFromMessage(msg string) Reason {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "nonce too low"), strings.Contains(m, "nonce is too low"):
		return ReasonNonceTooLow
	case strings.Contains(m, "insufficient funds"), strings.Contains(m, "insufficient balance"):
		return ReasonInsufficientFunds
	case strings.Contains(m, "underpriced"), strings.Contains(m, "fee too low"):
		return ReasonUnderpriced
	case strings.Contains(m, "intrinsic gas too low"), strings.Contains(m, "out of gas"), strings.Contains(m, "gas limit"):
		return ReasonOutOfGas
	case strings.Contains(m, "already known"), strings.Contains(m, "known transaction"):
		return ReasonAlreadyKnown
	}
	return ReasonRejected
}
