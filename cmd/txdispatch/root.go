package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gateway-fm/txdispatch/internal/chain"
	"github.com/gateway-fm/txdispatch/internal/config"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
	"github.com/gateway-fm/txdispatch/internal/metrics"
	"github.com/gateway-fm/txdispatch/internal/rpc"
)

// app is the state shared by every subcommand. cfg and logger are set by
// the root command before any subcommand runs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	prom   *metrics.PrometheusMetrics
}

func newRootCmd(prom *metrics.PrometheusMetrics) *cobra.Command {
	a := &app{prom: prom}

	root := &cobra.Command{
		Use:   "txdispatch",
		Short: "Bounded-concurrency transaction dispatcher for EVM chains",
		Long: `txdispatch signs and submits native transfers and cross-chain bridge
calls from a pool of accounts, with bounded concurrency, rate pacing,
batching and receipt confirmation.

Configuration is read from defaults, then the --env-file, then the
environment, then flags. Nodes come from --network or NODE<n>_RPC,
NODE<n>_CHAINID and NODE<n>_CONTRACT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}
			cfg, err := config.Load(envFile, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	config.AddFlags(root.PersistentFlags())

	root.AddCommand(
		accountsCmd(a),
		genesisCmd(a),
		fundCmd(a),
		loadCmd(a),
		xchainCmd(a),
		balancesCmd(a),
		defundCmd(a),
	)
	return root
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// gateway returns a chain gateway for node whose RPC calls are timed into
// the Prometheus RPC histogram.
func (a *app) gateway(node config.Node) *chain.RPCGateway {
	cfg := rpc.DefaultClientConfig(node.RPC)
	cfg.Timeout = a.cfg.RPCTimeout
	cfg.Logger = a.logger.With(slog.String("node", node.Name))
	if a.prom != nil {
		cfg.Observer = func(method string, ok bool, elapsed time.Duration) {
			a.prom.RecordRPCLatency(method, ok, elapsed.Seconds())
		}
	}
	return chain.NewRPCGateway(rpc.NewHTTPClient(cfg))
}

// adjustForClient tunes cfg to what the node's client accepts. Nodes without
// a configured client are left alone.
func (a *app) adjustForClient(node config.Node, cfg *dispatch.Config) {
	caps := node.Capabilities()
	if caps == nil {
		return
	}
	if caps.RequiresLegacyTx && !cfg.Legacy {
		a.logger.Debug("Client requires legacy transactions", slog.String("node", node.Name), slog.String("client", caps.Name))
		cfg.Legacy = true
	}
	if cfg.Gas.Mode == dispatch.GasZero && !caps.AcceptsZeroGasPrice {
		a.logger.Warn("Client may reject zero gas prices", slog.String("node", node.Name), slog.String("client", caps.Name))
	}
}
