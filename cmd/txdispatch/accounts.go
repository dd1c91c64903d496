package main

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
)

func accountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Generate and split account files",
	}
	cmd.AddCommand(accountsGenerateCmd(a), accountsSplitCmd(a))
	return cmd
}

func accountsGenerateCmd(a *app) *cobra.Command {
	var senders, receivers int
	var force bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sender and receiver keys into the accounts file",
		Long: `Generate fresh secp256k1 keys and write them to the accounts file
(--accounts). An existing file is only replaced with --force.

Example:
  txdispatch accounts generate --senders 1000 --receivers 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if senders <= 0 || receivers < 0 {
				return fmt.Errorf("need --senders > 0 and --receivers >= 0")
			}
			path := a.cfg.AccountsFile
			if !force {
				if _, err := account.LoadFile(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to replace it)", path)
				}
			}

			s, err := account.Generate(senders)
			if err != nil {
				return err
			}
			r, err := account.Generate(receivers)
			if err != nil {
				return err
			}
			if err := account.NewFile(s, r).Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d senders and %d receivers to %s\n", senders, receivers, path)
			return nil
		},
	}
	cmd.Flags().IntVar(&senders, "senders", 100, "number of sender accounts")
	cmd.Flags().IntVar(&receivers, "receivers", 100, "number of receiver accounts")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing accounts file")
	return cmd
}

func accountsSplitCmd(a *app) *cobra.Command {
	var nodes int
	var dir string

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split the accounts file into node-<n>.json files",
		Long: `Partition the senders and receivers of the accounts file into equal,
contiguous chunks, one node-<n>.json per node. Cross-chain runs read
these files from --dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodes == 0 {
				nodes = len(a.cfg.Nodes)
			}
			if nodes == 0 {
				return errors.New("--nodes is required when no nodes are configured")
			}
			f, err := account.LoadFile(a.cfg.AccountsFile)
			if err != nil {
				return err
			}
			paths, err := account.SplitFile(f, dir, nodes)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), "Wrote", p)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&nodes, "nodes", 0, "number of node files (default: configured node count)")
	cmd.Flags().StringVar(&dir, "dir", ".", "output directory")
	return cmd
}

func genesisCmd(a *app) *cobra.Command {
	var in, out, balance string

	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Allocate a genesis balance to every sender",
		Long: `Patch a genesis JSON so every sender in the accounts file starts with
--balance wei (hex or decimal). Other allocations and fields are kept.

Example:
  txdispatch genesis --in genesis.json --out genesis.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wei, err := parseGenesisBalance(balance)
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
			if out == "" {
				out = in
			}
			n, err := account.PatchGenesis(in, out, senders, wei)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Allocated %s ETH to %d accounts in %s\n", formatEther(wei), n, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "genesis.json", "genesis file to read")
	cmd.Flags().StringVar(&out, "out", "", "genesis file to write (default: --in)")
	cmd.Flags().StringVar(&balance, "balance", hexutil.EncodeBig(account.GenesisBalance), "balance per account in wei, hex (0x...) or with an eth/gwei suffix")
	return cmd
}

func parseGenesisBalance(s string) (*big.Int, error) {
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		return hexutil.DecodeBig(s)
	}
	return parseAmount(s)
}
