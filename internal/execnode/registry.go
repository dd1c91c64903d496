package execnode

import (
	"slices"
	"strings"
	"sync"
)

// Registry holds registered client capability definitions.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Capabilities
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Capabilities),
	}
}

// Register adds or updates a client capability definition.
func (r *Registry) Register(caps *Capabilities) {
	if caps == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[caps.Name] = caps
}

// Get retrieves capabilities by name, ignoring case. Returns nil if not
// found.
func (r *Registry) Get(name string) *Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[strings.ToLower(strings.TrimSpace(name))]
}

// Names returns all registered client names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultRegistry returns a registry pre-populated with the built-in
// clients.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(GethCapabilities())
	r.Register(RethCapabilities())
	r.Register(&Capabilities{Name: "op-reth"})
	r.Register(&Capabilities{Name: "anvil"})
	r.Register(ErigonCapabilities())
	r.Register(CDKErigonCapabilities())
	return r
}

// GethCapabilities returns the capabilities of go-ethereum.
func GethCapabilities() *Capabilities {
	return &Capabilities{Name: "geth"}
}

// RethCapabilities returns the capabilities of reth.
func RethCapabilities() *Capabilities {
	return &Capabilities{Name: "reth"}
}

// ErigonCapabilities returns the capabilities of erigon.
func ErigonCapabilities() *Capabilities {
	return &Capabilities{Name: "erigon"}
}

// CDKErigonCapabilities returns the capabilities of cdk-erigon, which only
// takes legacy transactions and is commonly run gas-free.
func CDKErigonCapabilities() *Capabilities {
	return &Capabilities{
		Name:                "cdk-erigon",
		RequiresLegacyTx:    true,
		AcceptsZeroGasPrice: true,
	}
}
