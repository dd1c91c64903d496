package main

import (
	"fmt"
	"math/big"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/config"
)

func balancesCmd(a *app) *cobra.Command {
	var nodeRef, dir string
	var withReceivers bool

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Print account balances on each node",
		Long: `Query the balance of every sender (and with --receivers every receiver)
concurrently and print them with a per-node total. Accounts come from
the accounts file, or from node-<n>.json files when --dir is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes := a.cfg.Nodes
			if nodeRef != "" {
				n, err := a.cfg.Node(nodeRef)
				if err != nil {
					return err
				}
				nodes = []config.Node{n}
			}
			if len(nodes) == 0 {
				return config.ErrNoNodes
			}

			out := cmd.OutOrStdout()
			for _, node := range nodes {
				path := a.cfg.AccountsFile
				if dir != "" {
					path = filepath.Join(dir, account.NodeFileName(a.nodeIndex(node)))
				}
				f, err := account.LoadFile(path)
				if err != nil {
					return err
				}
				accounts, err := f.SenderAccounts()
				if err != nil {
					return err
				}
				if withReceivers {
					receivers, err := f.ReceiverAccounts()
					if err != nil {
						return err
					}
					accounts = append(accounts, receivers...)
				}

				fmt.Fprintf(out, "\n=== %s (%s) ===\n", node.Name, node.RPC)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tADDRESS\tETH\tWEI")
				total := new(big.Int)
				var failed int
				for i, b := range account.Balances(cmd.Context(), a.gateway(node), accounts) {
					if b.Err != nil {
						failed++
						fmt.Fprintf(tw, "%d\t%s\terror: %v\t\n", i+1, b.Account.Address.Hex(), b.Err)
						continue
					}
					total.Add(total, b.Wei)
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, b.Account.Address.Hex(), formatEther(b.Wei), b.Wei)
				}
				tw.Flush()
				fmt.Fprintf(out, "Total: %s ETH across %d accounts", formatEther(total), len(accounts)-failed)
				if failed > 0 {
					fmt.Fprintf(out, " (%d queries failed)", failed)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeRef, "node", "", "node name or 1-based index (default: every node)")
	cmd.Flags().StringVar(&dir, "dir", "", "read node-<n>.json files from this directory instead of the accounts file")
	cmd.Flags().BoolVar(&withReceivers, "receivers", false, "include receivers")
	return cmd
}

// nodeIndex returns the 1-based position of node in the configured set.
func (a *app) nodeIndex(node config.Node) int {
	for i, n := range a.cfg.Nodes {
		if n.Name == node.Name {
			return i + 1
		}
	}
	return 0
}
