// Package execnode describes what the node software behind an RPC endpoint
// supports, so commands adapt by capability instead of by client name.
package execnode

// Capabilities defines what features a node client supports.
type Capabilities struct {
	// Name is the canonical client identifier, e.g. "geth", "cdk-erigon".
	Name string

	// RequiresLegacyTx indicates the node rejects EIP-1559 transactions.
	RequiresLegacyTx bool

	// AcceptsZeroGasPrice indicates the chain is usually run with free gas,
	// so zero-priced transactions are accepted.
	AcceptsZeroGasPrice bool
}

// String returns the canonical name of the client.
func (c *Capabilities) String() string {
	if c == nil {
		return "unknown"
	}
	return c.Name
}
