package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

func fundCmd(a *app) *cobra.Command {
	var rf runFlags
	var sendersOnly, devFunder bool

	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Fund every account in the accounts file from the master wallet",
		Long: `Send --amount from the master wallet (MASTER_WALLET_KEY or FUNDER_KEY)
to every account in the accounts file. The master balance is checked
against the total before anything is sent. Batches are priced with
escalating gas and confirmed before the next batch starts.

Example:
  txdispatch fund --node 1 --amount 10eth`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			funder, err := a.funder(devFunder)
			if err != nil {
				return err
			}
			node, err := a.cfg.Node(rf.node)
			if err != nil {
				return err
			}
			f, err := account.LoadFile(a.cfg.AccountsFile)
			if err != nil {
				return err
			}
			var targets []*account.Account
			if sendersOnly {
				targets, err = f.SenderAccounts()
			} else {
				targets, err = f.All()
			}
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return errors.New("accounts file has no accounts to fund")
			}

			cfg, err := rf.config()
			if err != nil {
				return err
			}
			cfg.Count = len(targets)
			a.adjustForClient(node, &cfg)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s, err := a.openSession(cmd.OutOrStdout(), a.cfg.Nodes)
			if err != nil {
				return err
			}
			defer s.Close()

			pool := account.NewPool([]*account.Account{funder}, account.Addresses(targets),
				account.WithLogger(a.logger))
			_, err = s.dispatch(ctx, runRequest{
				Kind:    types.RunFund,
				Node:    node,
				Gateway: a.gateway(node),
				Config:  cfg,
				Job: dispatch.Job{
					Pool:         pool,
					RequireFunds: true,
				},
				Labels: map[string]any{"funder": funder.Address.Hex()},
			})
			return err
		},
	}
	rf.register(cmd.Flags(), runFlags{
		node:           "1",
		amount:         "1eth",
		concurrency:    50,
		batchSize:      50,
		gas:            "escalating",
		confirm:        "batch",
		confirmTimeout: 60 * time.Second,
		batchPause:     2 * time.Second,
		progress:       5 * time.Second,
	})
	// The count is the number of accounts.
	_ = cmd.Flags().MarkHidden("count")
	cmd.Flags().BoolVar(&sendersOnly, "senders-only", false, "fund only the senders")
	cmd.Flags().BoolVar(&devFunder, "dev-funder", false, "fund from the first well-known dev account when no master key is set")
	return cmd
}

// funder returns the master account, or the first dev account when dev is
// set and no master key is configured.
func (a *app) funder(dev bool) (*account.Account, error) {
	if a.cfg.MasterKey != "" {
		return account.NewAccountFromHex(a.cfg.MasterKey)
	}
	if !dev {
		return nil, errors.New("MASTER_WALLET_KEY or FUNDER_KEY must be set (or pass --dev-funder)")
	}
	accounts, err := account.LoadTestAccounts()
	if err != nil {
		return nil, err
	}
	a.logger.Warn("funding from a well-known dev account", slog.String("address", accounts[0].Address.Hex()))
	return accounts[0], nil
}
