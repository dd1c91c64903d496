package account

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// BalanceSource reports the balance of an address.
type BalanceSource interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Balance is one account's balance query result. Err is set when the query
// failed, in which case Wei is nil.
type Balance struct {
	Account *Account
	Wei     *big.Int
	Err     error
}

// balanceConcurrency limits concurrent balance queries.
const balanceConcurrency = 32

// Balances fetches the balance of every account concurrently. The result is
// index-aligned with accounts; individual failures are reported per entry.
func Balances(ctx context.Context, src BalanceSource, accounts []*Account) []Balance {
	out := make([]Balance, len(accounts))

	var g errgroup.Group
	g.SetLimit(balanceConcurrency)
	for i, acc := range accounts {
		g.Go(func() error {
			wei, err := src.BalanceOf(ctx, acc.Address)
			out[i] = Balance{Account: acc, Wei: wei, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// SplitFunded partitions accounts into those holding at least minBalance and
// the rest. Accounts whose query fails count as unfunded.
func SplitFunded(ctx context.Context, src BalanceSource, accounts []*Account, minBalance *big.Int, logger *slog.Logger) (funded, unfunded []*Account) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, b := range Balances(ctx, src, accounts) {
		switch {
		case b.Err != nil:
			logger.Debug("balance check failed",
				slog.String("address", b.Account.Address.Hex()),
				slog.String("err", b.Err.Error()))
			unfunded = append(unfunded, b.Account)
		case b.Wei.Cmp(minBalance) >= 0:
			funded = append(funded, b.Account)
		default:
			unfunded = append(unfunded, b.Account)
		}
	}
	return funded, unfunded
}
