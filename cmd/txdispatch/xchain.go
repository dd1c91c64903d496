package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/account"
	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/config"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/internal/txbuilder"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

// Audit log file names of cross-chain runs.
const (
	oneWayAuditLog = "eth-transfer-1way.log"
	nWayAuditLog   = "eth_transfers-Nway.log"
)

// xchainFlags are the options shared by the cross-chain commands.
type xchainFlags struct {
	runFlags
	dir        string
	perNode    int
	rounds     string
	roundPause time.Duration
}

func (f *xchainFlags) register(cmd *cobra.Command) {
	f.runFlags.register(cmd.Flags(), runFlags{
		amount:         "1000",
		concurrency:    100,
		gas:            "zero",
		confirm:        "end",
		confirmTimeout: 60 * time.Second,
		progress:       5 * time.Second,
	})
	// Node and count come from --from/--to and the node files.
	_ = cmd.Flags().MarkHidden("node")
	_ = cmd.Flags().MarkHidden("count")
	cmd.Flags().StringVar(&f.dir, "dir", ".", "directory holding node-<n>.json account files")
	cmd.Flags().IntVar(&f.perNode, "accounts-per-node", 0, "senders used per node (0 uses all)")
	cmd.Flags().StringVar(&f.rounds, "rounds", "1", `number of rounds, or "#" to run until interrupted`)
	cmd.Flags().DurationVar(&f.roundPause, "round-pause", 0, "pause between rounds")
}

func xchainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xchain",
		Short: "Send cross-chain bridge transfers between nodes",
		Long: `Call sendETHToDestinationChain on each source node's bridge contract
(NODE<n>_CONTRACT) from every funded sender of node-<src>.json, paying
receiver i of node-<dst>.json. Senders whose balance is below --amount
are skipped. Transactions are legacy and priced at zero gas by default.`,
	}
	cmd.AddCommand(xchainOneWayCmd(a), xchainNWayCmd(a))
	return cmd
}

func xchainOneWayCmd(a *app) *cobra.Command {
	var xf xchainFlags
	var from, to string

	cmd := &cobra.Command{
		Use:   "oneway",
		Short: "Bridge from one node to another for a number of rounds",
		Example: `  txdispatch xchain oneway --from 1 --to 2 --rounds 10 --amount 1000
  txdispatch xchain oneway --from 1 --to 2 --rounds '#'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, err := parseRounds(xf.rounds)
			if err != nil {
				return err
			}
			cfg, err := xf.config()
			if err != nil {
				return err
			}
			cfg.Legacy = true

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			src, err := a.loadXChainNode(ctx, from, xf.dir, xf.perNode)
			if err != nil {
				return err
			}
			dst, err := a.loadXChainNode(ctx, to, xf.dir, xf.perNode)
			if err != nil {
				return err
			}
			if src.node.Name == dst.node.Name {
				return errors.New("--from and --to must be different nodes")
			}

			s, err := a.openSession(cmd.OutOrStdout(), []config.Node{src.node, dst.node})
			if err != nil {
				return err
			}
			defer s.Close()

			return s.rounds(ctx, rounds, xf.roundPause, func(round int) error {
				return s.bridge(ctx, types.RunXChainOneWay, oneWayAuditLog, cfg, round, src, dst)
			})
		},
	}
	xf.register(cmd)
	cmd.Flags().StringVar(&from, "from", "1", "source node name or 1-based index")
	cmd.Flags().StringVar(&to, "to", "2", "destination node name or 1-based index")
	return cmd
}

func xchainNWayCmd(a *app) *cobra.Command {
	var xf xchainFlags
	var nodes int

	cmd := &cobra.Command{
		Use:   "nway",
		Short: "Bridge between every ordered pair of nodes each round",
		Example: `  txdispatch xchain nway --nodes 4 --rounds 5
  txdispatch xchain nway --rounds '#' --accounts-per-node 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, err := parseRounds(xf.rounds)
			if err != nil {
				return err
			}
			cfg, err := xf.config()
			if err != nil {
				return err
			}
			cfg.Legacy = true

			if nodes == 0 {
				nodes = len(a.cfg.Nodes)
			}
			if nodes < 2 {
				return fmt.Errorf("n-way needs at least 2 nodes, have %d", nodes)
			}
			if nodes > len(a.cfg.Nodes) {
				return fmt.Errorf("--nodes %d exceeds the %d configured nodes", nodes, len(a.cfg.Nodes))
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			legs := make([]*xchainNode, nodes)
			for i := range legs {
				if legs[i], err = a.loadXChainNode(ctx, strconv.Itoa(i+1), xf.dir, xf.perNode); err != nil {
					return err
				}
			}

			s, err := a.openSession(cmd.OutOrStdout(), a.cfg.Nodes[:nodes])
			if err != nil {
				return err
			}
			defer s.Close()

			return s.rounds(ctx, rounds, xf.roundPause, func(round int) error {
				var errs []error
				for _, src := range legs {
					for _, dst := range legs {
						if src == dst {
							continue
						}
						if err := s.bridge(ctx, types.RunXChainNWay, nWayAuditLog, cfg, round, src, dst); err != nil {
							if ctx.Err() != nil {
								return err
							}
							// One failing pair does not stop the others.
							s.logger.Error("cross-chain run failed",
								slog.Int("round", round),
								slog.String("src", src.node.Name),
								slog.String("dst", dst.node.Name),
								slog.String("err", err.Error()))
							errs = append(errs, err)
						}
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	xf.register(cmd)
	cmd.Flags().IntVar(&nodes, "nodes", 0, "number of nodes taking part, counting from node 1 (default: all)")
	return cmd
}

// xchainNode is a node taking part in cross-chain runs with its account
// file loaded.
type xchainNode struct {
	node      config.Node
	gw        *chain.RPCGateway
	senders   []*account.Account
	receivers []common.Address
}

// loadXChainNode resolves ref, reads node-<index>.json from dir and fills in
// the chain ID from the node when it is not configured.
func (a *app) loadXChainNode(ctx context.Context, ref, dir string, perNode int) (*xchainNode, error) {
	node, err := a.cfg.Node(ref)
	if err != nil {
		return nil, err
	}
	f, err := account.LoadFile(filepath.Join(dir, account.NodeFileName(a.nodeIndex(node))))
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.Name, err)
	}
	senders, err := f.SenderAccounts()
	if err != nil {
		return nil, err
	}
	receivers, err := f.ReceiverAddresses()
	if err != nil {
		return nil, err
	}
	if perNode > 0 {
		senders = senders[:min(perNode, len(senders))]
		receivers = receivers[:min(perNode, len(receivers))]
	}

	gw := a.gateway(node)
	if node.ChainID == 0 {
		id, err := gw.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("node %s chain ID: %w", node.Name, err)
		}
		node.ChainID = id
	}
	if node.ChainID > math.MaxUint32 {
		return nil, fmt.Errorf("node %s chain ID %d does not fit the bridge's uint32", node.Name, node.ChainID)
	}
	return &xchainNode{node: node, gw: gw, senders: senders, receivers: receivers}, nil
}

// bridge runs one round from src to dst. Sender i of src pays receiver i
// of dst; underfunded senders are skipped without shifting the pairing.
func (s *session) bridge(ctx context.Context, kind types.RunKind, auditLog string, cfg dispatch.Config, round int, src, dst *xchainNode) error {
	if len(dst.receivers) == 0 {
		return fmt.Errorf("node %s has no receivers", dst.node.Name)
	}
	receiverOf := make(map[common.Address]common.Address, len(src.senders))
	for i, acc := range src.senders {
		receiverOf[acc.Address] = dst.receivers[i%len(dst.receivers)]
	}

	funded, unfunded := account.SplitFunded(ctx, src.gw, src.senders, cfg.Amount, s.logger)
	if len(unfunded) > 0 {
		s.logger.Warn("skipping underfunded senders",
			slog.String("node", src.node.Name),
			slog.Int("skipped", len(unfunded)),
			slog.Int("funded", len(funded)))
	}
	if len(funded) == 0 {
		s.logger.Warn("no funded senders, skipping round",
			slog.Int("round", round),
			slog.String("src", src.node.Name),
			slog.String("dst", dst.node.Name))
		return nil
	}

	receivers := make([]common.Address, len(funded))
	for i, acc := range funded {
		receivers[i] = receiverOf[acc.Address]
	}
	cfg.Count = len(funded)

	_, err := s.dispatch(ctx, runRequest{
		Kind:    kind,
		Node:    src.node,
		Gateway: src.gw,
		Config:  cfg,
		Job: dispatch.Job{
			Pool: account.NewPool(funded, receivers, account.WithLogger(s.logger)),
			Dest: &txbuilder.CrossChain{
				ChainID:  uint32(dst.node.ChainID),
				Contract: src.node.ContractAddress(),
			},
			Round: round,
		},
		AuditLog: auditLog,
		Labels: map[string]any{
			"round":        round,
			"dst_node":     dst.node.Name,
			"dst_chain_id": dst.node.ChainID,
		},
	})
	return err
}

// rounds calls fn for rounds 1..n, or until ctx ends when n is 0.
// Interruption is not an error.
func (s *session) rounds(ctx context.Context, n int, pause time.Duration, fn func(round int) error) error {
	for round := 1; n == 0 || round <= n; round++ {
		if ctx.Err() != nil {
			break
		}
		s.logger.Info("round starting", slog.Int("round", round))
		if err := fn(round); err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("round %d: %w", round, err)
		}
		if pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pause):
			}
		}
	}
	if ctx.Err() != nil {
		s.logger.Info("interrupted, stopping rounds")
	}
	return nil
}

// parseRounds parses a round count. "#" means infinite and returns 0.
func parseRounds(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "#" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf(`--rounds must be a positive number or "#", got %q`, s)
	}
	return n, nil
}
