package dispatch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/txdispatch/internal/account"
)

// Assignment is the sender, receiver and amount of one unit index.
type Assignment struct {
	Sender   int // active sender index, wrapped modulo the pool size
	Receiver common.Address
	Amount   *big.Int // nil uses Config.Amount
}

// Plan maps unit indexes to assignments. Assign must be deterministic: the
// funds check and the dispatch loop both call it for the same index.
type Plan interface {
	Assign(pool *account.Pool, i int) Assignment
}

// RoundRobin assigns sender i mod S and receiver i mod R.
type RoundRobin struct{}

func (RoundRobin) Assign(pool *account.Pool, i int) Assignment {
	return Assignment{Sender: i, Receiver: pool.ReceiverAt(i)}
}

// Sweep sends each sender's listed amount to one address. Senders missing
// from Amounts send zero.
type Sweep struct {
	To      common.Address
	Amounts map[common.Address]*big.Int
}

func (s Sweep) Assign(pool *account.Pool, i int) Assignment {
	amount := s.Amounts[pool.SenderAt(i).Address]
	if amount == nil {
		amount = new(big.Int)
	}
	return Assignment{Sender: i, Receiver: s.To, Amount: amount}
}
