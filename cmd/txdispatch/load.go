package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/internal/pattern"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

func loadCmd(a *app) *cobra.Command {
	var rf runFlags
	var patternName string
	var pc pattern.Config

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send native transfers from the senders to the receivers",
		Long: `Dispatch --count native transfers round-robin from the senders of the
accounts file to its receivers. Transfers go out one by one or in
batches (--batch-size), paced to --tps, with at most --concurrency in
flight. --pattern varies the target rate over the run. Results are
printed and written to --stats-out.

Example:
  txdispatch load --node 1 --count 10000 --concurrency 200 --tps 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := a.cfg.Node(rf.node)
			if err != nil {
				return err
			}
			f, err := account.LoadFile(a.cfg.AccountsFile)
			if err != nil {
				return err
			}
			senders, err := f.SenderAccounts()
			if err != nil {
				return err
			}
			if len(senders) == 0 {
				return errors.New("accounts file has no senders")
			}
			receivers, err := f.ReceiverAddresses()
			if err != nil {
				return err
			}
			if len(receivers) == 0 {
				receivers = account.Addresses(senders)
			}

			cfg, err := rf.config()
			if err != nil {
				return err
			}
			a.adjustForClient(node, &cfg)
			if patternName != "" {
				pc.Rate = rf.tps
				if cfg.Pattern, err = pattern.NewRegistry().Get(patternName, pc); err != nil {
					return fmt.Errorf("--pattern: %w", err)
				}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s, err := a.openSession(cmd.OutOrStdout(), a.cfg.Nodes)
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = s.dispatch(ctx, runRequest{
				Kind:    types.RunLoad,
				Node:    node,
				Gateway: a.gateway(node),
				Config:  cfg,
				Job: dispatch.Job{
					Pool: account.NewPool(senders, receivers, account.WithLogger(a.logger)),
				},
			})
			return err
		},
	}
	rf.register(cmd.Flags(), runFlags{
		node:           "1",
		amount:         "0.001eth",
		count:          1000,
		concurrency:    100,
		gas:            "fixed:1000000000",
		gasLimit:       21000,
		confirm:        "end",
		confirmTimeout: 60 * time.Second,
		progress:       5 * time.Second,
	})
	cmd.Flags().StringVar(&patternName, "pattern", "", "rate pattern: constant, ramp or spike (constant and spike use --tps as the base rate)")
	cmd.Flags().Float64Var(&pc.RampStart, "ramp-start", 10, "ramp pattern start rate")
	cmd.Flags().Float64Var(&pc.RampEnd, "ramp-end", 100, "ramp pattern end rate")
	cmd.Flags().DurationVar(&pc.RampDuration, "ramp-duration", time.Minute, "time to go from --ramp-start to --ramp-end")
	cmd.Flags().Float64Var(&pc.SpikeRate, "spike-rate", 500, "spike pattern burst rate")
	cmd.Flags().DurationVar(&pc.SpikeDuration, "spike-duration", 5*time.Second, "length of each burst")
	cmd.Flags().DurationVar(&pc.SpikeInterval, "spike-interval", 30*time.Second, "time between burst starts")
	return cmd
}
