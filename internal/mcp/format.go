package mcp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gateway-fm/txdispatch/internal/transport"
	"github.com/gateway-fm/txdispatch/pkg/types"
)

const maxTxLines = 20

// formatNumber adds comma separators to integers.
func formatNumber[T ~int | ~int64 | ~uint64](n T) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		result.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// kv formats a key-value pair with aligned values (20 char key width).
func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

// section returns a markdown section header.
func section(title string) string {
	return "## " + title
}

// joinLines joins non-empty lines with newlines.
func joinLines(lines ...string) string {
	var result []string
	for _, l := range lines {
		if l != "" {
			result = append(result, l)
		}
	}
	return strings.Join(result, "\n")
}

// formatMs formats milliseconds with a "ms" suffix.
func formatMs(v float64) string {
	return fmt.Sprintf("%.1fms", v)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:18] + "..."
}

func formatCounts(c types.Counts) string {
	return joinLines(
		kv("Submitted", formatNumber(c.Submitted)),
		kv("Accepted", formatNumber(c.Accepted)),
		kv("Confirmed", formatNumber(c.Confirmed)),
		kv("Failed", formatNumber(c.Failed)),
		kv("Timed Out", formatNumber(c.TimedOut)),
	)
}

func formatLatency(title string, l *types.LatencyStats) string {
	if l == nil || l.Count == 0 {
		return ""
	}
	return "\n\n" + joinLines(
		section(title),
		kv("Samples", formatNumber(l.Count)),
		kv("Min", formatMs(l.Min)),
		kv("P50", formatMs(l.P50)),
		kv("P95", formatMs(l.P95)),
		kv("P99", formatMs(l.P99)),
		kv("Max", formatMs(l.Max)),
	)
}

func formatStatus(st types.StatusResponse) string {
	if st.RunID == "" {
		return joinLines(section("Dispatcher Status"), kv("State", st.State), "No run has started yet.")
	}

	lines := joinLines(
		section("Dispatcher Status"),
		kv("Run", st.RunID),
		kv("Kind", st.Kind),
		kv("State", st.State),
		kv("Chain ID", st.ChainID),
		kv("Target", formatNumber(st.Target)),
		formatCounts(st.Counts),
		kv("In Flight", formatNumber(st.InFlight)),
		kv("TPS", fmt.Sprintf("%.1f", st.TPS)),
		kv("Elapsed", fmt.Sprintf("%.1fs", float64(st.ElapsedMs)/1000)),
	)
	if st.Error != "" {
		lines += "\n" + kv("Error", st.Error)
	}
	lines += formatLatency("Submit Latency", st.SubmitLatency)
	lines += formatLatency("Confirmation Latency", st.ConfirmLatency)
	return lines
}

type readyResponse struct {
	Ready  bool                       `json:"ready"`
	Checks []transport.ReadinessCheck `json:"checks"`
}

func formatHealth(r readyResponse) string {
	state := "READY"
	if !r.Ready {
		state = "NOT READY"
	}

	lines := section("Dispatcher Health: " + state)
	for _, c := range r.Checks {
		line := fmt.Sprintf("  %-15s %s (%dms)", c.Name, c.Status, c.LatencyMs)
		if c.Error != "" {
			line += " - " + c.Error
		}
		lines += "\n" + line
	}
	return lines
}

func formatRuns(page types.RunListResponse) string {
	lines := joinLines(
		section("Run History"),
		kv("Total Runs", formatNumber(page.Total)),
	) + "\n\n"

	if len(page.Runs) == 0 {
		return lines + "No runs found."
	}

	for _, run := range page.Runs {
		lines += fmt.Sprintf("### %s\n", run.ID)
		lines += joinLines(
			kv("Kind", run.Kind),
			kv("State", run.State),
			kv("Submitted", formatNumber(run.Counts.Submitted)),
			kv("Confirmed", formatNumber(run.Counts.Confirmed)),
			kv("Failed", formatNumber(run.Counts.Failed)),
			kv("TPS", fmt.Sprintf("%.1f", run.TPS)),
			kv("Started", formatTime(run.StartedAt)),
		)
		lines += "\n\n"
	}
	return lines
}

func formatRunDetail(run types.RunDetail) string {
	lines := joinLines(
		section("Run: "+run.ID),
		kv("Kind", run.Kind),
		kv("State", run.State),
		kv("Chain ID", run.ChainID),
		kv("Target", formatNumber(run.Target)),
		kv("Duration", fmt.Sprintf("%.1fs", float64(run.DurationMs)/1000)),
		formatCounts(run.Counts),
		kv("TPS", fmt.Sprintf("%.1f", run.TPS)),
		kv("Avg Latency", formatMs(run.AvgLatencyMs)),
	)
	if run.Error != "" {
		lines += "\n" + kv("Error", run.Error)
	}
	lines += formatLatency("Submit Latency", run.SubmitLatency)
	lines += formatLatency("Confirmation Latency", run.ConfirmLatency)

	if len(run.Config) > 0 {
		keys := make([]string, 0, len(run.Config))
		for k := range run.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines += "\n\n" + section("Config")
		for _, k := range keys {
			switch v := run.Config[k].(type) {
			case float64:
				if v == float64(int64(v)) {
					lines += "\n" + kv(k, formatNumber(int64(v)))
				} else {
					lines += "\n" + kv(k, fmt.Sprintf("%.2f", v))
				}
			case string:
				if v != "" {
					lines += "\n" + kv(k, v)
				}
			default:
				lines += "\n" + kv(k, v)
			}
		}
	}
	return lines
}

func formatRunTxs(page types.TxListResponse) string {
	lines := joinLines(
		section("Transaction Log"),
		kv("Total", formatNumber(page.Total)),
	) + "\n\n"

	if len(page.Transactions) == 0 {
		return lines + "No transactions found."
	}

	for i, tx := range page.Transactions {
		if i >= maxTxLines {
			lines += fmt.Sprintf("... and %d more\n", len(page.Transactions)-maxTxLines)
			break
		}
		line := fmt.Sprintf("  [%d] %-7s batch=%d %s %d->%d %s wei",
			page.Offset+i, tx.Status, tx.Batch, shortHash(tx.TxHash), tx.SrcChain, tx.DstChain, tx.Amount)
		if tx.Error != "" {
			line += " (" + tx.Error + ")"
		}
		lines += line + "\n"
	}
	return lines
}
