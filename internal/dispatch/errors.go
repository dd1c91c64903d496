package dispatch

import (
	"errors"
	"fmt"
)

// Setup stages reported in SetupError.
const (
	StageConfig   = "config"
	StageChainID  = "chain-id"
	StageNonces   = "nonces"
	StageGasPrice = "gas-price"
	StageFunds    = "funds"
	StageBridge   = "bridge-contract"
)

var (
	// ErrInsufficientFunds is returned when a sender cannot cover its units.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoBridgeCode is returned when the bridge address holds no code.
	ErrNoBridgeCode = errors.New("no contract code at bridge address")
)

// SetupError aborts a run before any unit is dispatched.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetup reports whether err is a SetupError.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
