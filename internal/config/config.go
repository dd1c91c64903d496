// Package config handles configuration loading and validation.
//
// Values are layered: defaults, then a .env file, then the process
// environment, then command-line flags. The node set comes from a YAML
// network file when one is given, otherwise from NODE<n>_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/gateway-fm/txdispatch/internal/execnode"
)

// Defaults
const (
	DefaultEnvFile            = ".env"
	DefaultAccountsFile       = "accounts.json"
	DefaultListenAddr         = ""
	DefaultDatabasePath       = "./data/txdispatch.db"
	DefaultStatsOut           = "tx_stats.json"
	DefaultAuditDir           = "."
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultCORSAllowedOrigins = "*"
	DefaultRPCTimeout         = 30 * time.Second

	// maxEnvNodes bounds the NODE<n>_RPC scan.
	maxEnvNodes = 64
)

// ErrNoNodes is returned when neither a network file nor NODE<n>_RPC
// variables define a node.
var ErrNoNodes = errors.New("no nodes configured")

// Node is one chain endpoint.
type Node struct {
	Name     string `yaml:"name"`
	RPC      string `yaml:"rpc"`
	ChainID  uint64 `yaml:"chain_id"`
	Contract string `yaml:"contract"`
	// Client is the node software, e.g. "geth" or "cdk-erigon". Optional.
	Client string `yaml:"client"`
}

// Capabilities returns what the node's client supports, or nil when the
// client is not set or unknown.
func (n Node) Capabilities() *execnode.Capabilities {
	if n.Client == "" {
		return nil
	}
	return execnode.DefaultRegistry().Get(n.Client)
}

// ContractAddress returns the bridge contract, or the zero address if none
// is configured.
func (n Node) ContractAddress() common.Address {
	return common.HexToAddress(n.Contract)
}

type networkFile struct {
	Nodes []Node `yaml:"nodes"`
}

// Config holds dispatcher configuration shared by all commands.
type Config struct {
	Nodes []Node

	// MasterKey is the hex private key of the funding account, without 0x.
	MasterKey string
	// MasterAddress is where defund sweeps go. Derived from MasterKey when
	// unset.
	MasterAddress string

	AccountsFile       string
	NetworkFile        string
	ListenAddr         string // empty disables the status server
	DatabasePath       string // empty disables run history
	StatsOut           string
	AuditDir           string
	CORSAllowedOrigins string
	LogLevel           string
	LogFormat          string
	RPCTimeout         time.Duration
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		AccountsFile:       DefaultAccountsFile,
		ListenAddr:         DefaultListenAddr,
		DatabasePath:       DefaultDatabasePath,
		StatsOut:           DefaultStatsOut,
		AuditDir:           DefaultAuditDir,
		CORSAllowedOrigins: DefaultCORSAllowedOrigins,
		LogLevel:           DefaultLogLevel,
		LogFormat:          DefaultLogFormat,
		RPCTimeout:         DefaultRPCTimeout,
	}
}

// Load builds the configuration from envFile, the environment and the
// flags in fs. A missing envFile is not an error. fs may be nil.
func Load(envFile string, fs *pflag.FlagSet) (*Config, error) {
	if envFile != "" {
		// godotenv does not override variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := Defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := cfg.ApplyFlags(fs); err != nil {
			return nil, err
		}
	}

	if cfg.NetworkFile != "" {
		nodes, err := LoadNetworkFile(cfg.NetworkFile)
		if err != nil {
			return nil, err
		}
		cfg.Nodes = nodes
	} else {
		nodes, err := nodesFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Nodes = nodes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MASTER_WALLET_KEY"); v != "" {
		c.MasterKey = v
	} else if v := os.Getenv("FUNDER_KEY"); v != "" {
		c.MasterKey = v
	}
	c.MasterKey = strings.TrimPrefix(strings.TrimSpace(c.MasterKey), "0x")

	if v := os.Getenv("MASTER_WALLET_ADDRESS"); v != "" {
		c.MasterAddress = v
	}
	if v := os.Getenv("ACCOUNTS_FILE"); v != "" {
		c.AccountsFile = v
	}
	if v := os.Getenv("NETWORK_FILE"); v != "" {
		c.NetworkFile = v
	}
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DATABASE_PATH"); ok {
		c.DatabasePath = v
	}
	if v := os.Getenv("STATS_OUT"); v != "" {
		c.StatsOut = v
	}
	if v := os.Getenv("AUDIT_DIR"); v != "" {
		c.AuditDir = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("RPC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RPC_TIMEOUT: %w", err)
		}
		c.RPCTimeout = d
	}
	return nil
}

// AddFlags registers the shared flags on fs. Defaults shown in help are the
// built-in ones; only flags set on the command line override the
// environment.
func AddFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("env-file", DefaultEnvFile, "dotenv file to load before reading the environment")
	fs.String("network", "", "YAML network file with the node set (overrides NODE<n>_* variables)")
	fs.String("accounts", d.AccountsFile, "accounts JSON file")
	fs.String("listen", d.ListenAddr, "status server listen address, e.g. :13002 (empty disables)")
	fs.String("db", d.DatabasePath, "SQLite run history path (empty disables)")
	fs.String("stats-out", d.StatsOut, "run statistics JSON output path (empty disables)")
	fs.String("audit-dir", d.AuditDir, "directory for audit log files")
	fs.String("cors", d.CORSAllowedOrigins, "comma-separated allowed CORS origins, or *")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", d.LogFormat, "log format: text or json")
	fs.Duration("rpc-timeout", d.RPCTimeout, "per-request RPC timeout")
}

// ApplyFlags copies every flag set on the command line into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"network":    &c.NetworkFile,
		"accounts":   &c.AccountsFile,
		"listen":     &c.ListenAddr,
		"db":         &c.DatabasePath,
		"stats-out":  &c.StatsOut,
		"audit-dir":  &c.AuditDir,
		"cors":       &c.CORSAllowedOrigins,
		"log-level":  &c.LogLevel,
		"log-format": &c.LogFormat,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if fs.Lookup("rpc-timeout") != nil && fs.Changed("rpc-timeout") {
		d, err := fs.GetDuration("rpc-timeout")
		if err != nil {
			return err
		}
		c.RPCTimeout = d
	}
	return nil
}

// LoadNetworkFile reads the node set from a YAML file.
func LoadNetworkFile(path string) ([]Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading network file: %w", err)
	}
	var nf networkFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("parsing network file %s: %w", path, err)
	}
	for i := range nf.Nodes {
		if nf.Nodes[i].Name == "" {
			nf.Nodes[i].Name = fmt.Sprintf("node%d", i+1)
		}
	}
	return nf.Nodes, nil
}

// nodesFromEnv reads NODE1_*, NODE2_*, ... until NODE<n>_RPC is unset.
func nodesFromEnv() ([]Node, error) {
	var nodes []Node
	for i := 1; i <= maxEnvNodes; i++ {
		prefix := fmt.Sprintf("NODE%d_", i)
		rpcURL := os.Getenv(prefix + "RPC")
		if rpcURL == "" {
			break
		}
		n := Node{
			Name:     fmt.Sprintf("node%d", i),
			RPC:      rpcURL,
			Contract: os.Getenv(prefix + "CONTRACT"),
			Client:   os.Getenv(prefix + "CLIENT"),
		}
		if v := os.Getenv(prefix + "CHAINID"); v != "" {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chain ID format for %sCHAINID: %w", prefix, err)
			}
			n.ChainID = id
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	for i, n := range c.Nodes {
		if n.RPC == "" {
			errs = append(errs, fmt.Errorf("node %d (%s): rpc is required", i+1, n.Name))
		}
		if n.Contract != "" && !common.IsHexAddress(n.Contract) {
			errs = append(errs, fmt.Errorf("node %d (%s): invalid contract address %q", i+1, n.Name, n.Contract))
		}
		if n.Client != "" && n.Capabilities() == nil {
			errs = append(errs, fmt.Errorf("node %d (%s): unknown client %q (supported: %s)",
				i+1, n.Name, n.Client, strings.Join(execnode.DefaultRegistry().Names(), ", ")))
		}
	}
	if c.MasterAddress != "" && !common.IsHexAddress(c.MasterAddress) {
		errs = append(errs, fmt.Errorf("invalid MASTER_WALLET_ADDRESS %q", c.MasterAddress))
	}
	if c.MasterKey != "" {
		if _, err := crypto.HexToECDSA(c.MasterKey); err != nil {
			errs = append(errs, fmt.Errorf("invalid master key: %w", err))
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	if c.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("rpc timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Node returns the node named ref, or the ref-th node counting from 1.
func (c *Config) Node(ref string) (Node, error) {
	if len(c.Nodes) == 0 {
		return Node{}, ErrNoNodes
	}
	for _, n := range c.Nodes {
		if n.Name == ref {
			return n, nil
		}
	}
	if i, err := strconv.Atoi(ref); err == nil && i >= 1 && i <= len(c.Nodes) {
		return c.Nodes[i-1], nil
	}
	return Node{}, fmt.Errorf("unknown node %q (have %d nodes)", ref, len(c.Nodes))
}

// Master returns the master address, from MASTER_WALLET_ADDRESS or derived
// from the master key.
func (c *Config) Master() (common.Address, error) {
	if c.MasterAddress != "" {
		return common.HexToAddress(c.MasterAddress), nil
	}
	if c.MasterKey == "" {
		return common.Address{}, errors.New("MASTER_WALLET_KEY or MASTER_WALLET_ADDRESS must be set")
	}
	key, err := crypto.HexToECDSA(c.MasterKey)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid master key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
