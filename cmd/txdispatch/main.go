// Command txdispatch funds accounts and drives transfer and cross-chain
// bridge load against one or more EVM nodes.
package main

import (
	"fmt"
	"os"

	"github.com/gateway-fm/txdispatch/internal/metrics"
)

func main() {
	// Registered once on the default registry that /metrics serves.
	prom := metrics.NewPrometheusMetrics(nil)

	if err := newRootCmd(prom).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
