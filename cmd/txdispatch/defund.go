package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

func defundCmd(a *app) *cobra.Command {
	var nodeRef, file string
	var zeroGas bool
	var gasLimit uint64
	var concurrency int

	cmd := &cobra.Command{
		Use:   "defund",
		Short: "Sweep every account's balance back to the master wallet",
		Long: `Send each account's balance minus the transfer gas cost to the master
address (MASTER_WALLET_ADDRESS, or the address of the master key).
Accounts that cannot cover the gas cost are skipped. With --zero-gas
transfers are priced at zero and the whole balance is swept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := a.cfg.Master()
			if err != nil {
				return err
			}
			node, err := a.cfg.Node(nodeRef)
			if err != nil {
				return err
			}
			if file == "" {
				file = a.cfg.AccountsFile
			}
			f, err := account.LoadFile(file)
			if err != nil {
				return err
			}
			accounts, err := f.All()
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			gw := a.gateway(node)
			gas := dispatch.Zero()
			price := new(big.Int)
			if !zeroGas {
				if price, err = gw.GasPrice(ctx); err != nil {
					return fmt.Errorf("gas price: %w", err)
				}
				gas = dispatch.Fixed(price)
			}

			senders, amounts := sweepAmounts(account.Balances(ctx, gw, accounts), price, gasLimit, a.logger)
			if len(senders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to sweep.")
				return nil
			}

			s, err := a.openSession(cmd.OutOrStdout(), a.cfg.Nodes)
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = s.dispatch(ctx, runRequest{
				Kind:    types.RunDefund,
				Node:    node,
				Gateway: gw,
				Config: dispatch.Config{
					Count:            len(senders),
					Concurrency:      concurrency,
					Gas:              gas,
					GasLimit:         gasLimit,
					Amount:           new(big.Int),
					Confirm:          dispatch.ConfirmAtEnd,
					ProgressInterval: 5 * time.Second,
				},
				Job: dispatch.Job{
					Pool: account.NewPool(senders, []common.Address{master}, account.WithLogger(a.logger)),
					Plan: dispatch.Sweep{To: master, Amounts: amounts},
				},
				Labels: map[string]any{"master": master.Hex()},
			})
			return err
		},
	}
	cmd.Flags().StringVar(&nodeRef, "node", "1", "node name or 1-based index")
	cmd.Flags().StringVar(&file, "file", "", "accounts file to sweep (default: --accounts)")
	cmd.Flags().BoolVar(&zeroGas, "zero-gas", false, "price sweeps at zero gas and send the whole balance")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 21000, "gas limit per sweep transfer")
	cmd.Flags().IntVar(&concurrency, "concurrency", 50, "max sweeps in flight")
	return cmd
}

// sweepAmounts returns the accounts worth sweeping and what each sends:
// its balance minus price*gasLimit. Accounts whose balance does not exceed
// the gas cost, or whose query failed, are left out.
func sweepAmounts(balances []account.Balance, price *big.Int, gasLimit uint64, logger *slog.Logger) ([]*account.Account, map[common.Address]*big.Int) {
	cost := new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))

	var senders []*account.Account
	amounts := make(map[common.Address]*big.Int)
	for _, b := range balances {
		switch {
		case b.Err != nil:
			logger.Warn("skipping account, balance query failed",
				slog.String("address", b.Account.Address.Hex()),
				slog.String("err", b.Err.Error()))
		case b.Wei.Cmp(cost) <= 0:
			logger.Debug("skipping account, balance too low to cover gas",
				slog.String("address", b.Account.Address.Hex()),
				slog.String("balance", b.Wei.String()))
		default:
			senders = append(senders, b.Account)
			amounts[b.Account.Address] = new(big.Int).Sub(b.Wei, cost)
		}
	}
	return senders, amounts
}
