package dispatch

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// GasMode selects how unit gas prices are derived.
type GasMode int

const (
	// GasFixed uses one price for every unit.
	GasFixed GasMode = iota
	// GasEscalating prices the i-th unit of a batch at base + base*i/10.
	GasEscalating
	// GasZero prices every unit at zero.
	GasZero
)

// GasPolicy prices units. The zero value is Fixed at the chain price.
type GasPolicy struct {
	Mode GasMode
	// Wei is the fixed price. Nil fetches the chain price once per run.
	Wei *big.Int
}

// Escalating returns the batch-escalating policy.
func Escalating() GasPolicy { return GasPolicy{Mode: GasEscalating} }

// Fixed returns a policy pricing every unit at wei, or at the chain price
// when wei is nil.
func Fixed(wei *big.Int) GasPolicy { return GasPolicy{Mode: GasFixed, Wei: wei} }

// Zero returns the zero-price policy.
func Zero() GasPolicy { return GasPolicy{Mode: GasZero} }

// ParseGasPolicy parses "escalating", "zero", "fixed" (chain price) or
// "fixed:<wei>".
func ParseGasPolicy(s string) (GasPolicy, error) {
	name, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	switch name {
	case "escalating":
		return Escalating(), nil
	case "zero":
		return Zero(), nil
	case "fixed", "":
		if arg == "" {
			return Fixed(nil), nil
		}
		wei, ok := new(big.Int).SetString(arg, 10)
		if !ok {
			return GasPolicy{}, fmt.Errorf("invalid fixed gas price %q", arg)
		}
		return Fixed(wei), nil
	default:
		return GasPolicy{}, fmt.Errorf("unknown gas policy %q", s)
	}
}

func (p GasPolicy) String() string {
	switch p.Mode {
	case GasEscalating:
		return "escalating"
	case GasZero:
		return "zero"
	default:
		if p.Wei == nil {
			return "fixed"
		}
		return "fixed:" + p.Wei.String()
	}
}

func (p GasPolicy) validate() error {
	switch p.Mode {
	case GasFixed:
		if p.Wei != nil && p.Wei.Sign() < 0 {
			return errors.New("fixed gas price must be non-negative")
		}
	case GasEscalating, GasZero:
	default:
		return fmt.Errorf("invalid gas mode %d", p.Mode)
	}
	return nil
}

// needsChainPrice reports whether the base price must be queried.
func (p GasPolicy) needsChainPrice() bool {
	return p.Mode == GasEscalating || (p.Mode == GasFixed && p.Wei == nil)
}

// perBatch reports whether the base price is refreshed for every batch.
func (p GasPolicy) perBatch() bool {
	return p.Mode == GasEscalating
}

// Price returns the gas price of the unit at position pos within its batch.
// base is the chain price and is ignored by fixed and zero policies that
// carry their own value.
func (p GasPolicy) Price(base *big.Int, pos int) *big.Int {
	switch p.Mode {
	case GasZero:
		return new(big.Int)
	case GasEscalating:
		if base == nil {
			return new(big.Int)
		}
		step := new(big.Int).Mul(base, big.NewInt(int64(pos)))
		step.Div(step, big.NewInt(10))
		return step.Add(step, base)
	default:
		if p.Wei != nil {
			return new(big.Int).Set(p.Wei)
		}
		if base == nil {
			return new(big.Int)
		}
		return new(big.Int).Set(base)
	}
}
