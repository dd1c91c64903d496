package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/txdispatch/internal/config"
	"github.com/gateway-fm/txdispatch/internal/dispatch"
)

func TestAdjustForClient(t *testing.T) {
	var buf bytes.Buffer
	a := &app{logger: newLogger(&buf, "debug", "text")}

	cfg := dispatch.Config{Gas: dispatch.Zero()}
	a.adjustForClient(config.Node{Name: "n1", Client: "cdk-erigon"}, &cfg)
	require.True(t, cfg.Legacy)
	require.NotContains(t, buf.String(), "zero gas")

	cfg = dispatch.Config{Gas: dispatch.Zero()}
	a.adjustForClient(config.Node{Name: "n1", Client: "geth"}, &cfg)
	require.False(t, cfg.Legacy)
	require.Contains(t, buf.String(), "zero gas")

	cfg = dispatch.Config{}
	a.adjustForClient(config.Node{Name: "n1"}, &cfg)
	require.False(t, cfg.Legacy)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "json").Info("hidden")
	require.Empty(t, buf.String())

	newLogger(&buf, "info", "json").Info("shown", slog.Int("n", 1))
	require.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())

	require.NotNil(t, newLogger(io.Discard, "bogus", "text"))
}
