package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gateway-fm/txdispatch/pkg/types"
)

// Report is the JSON form of RunStats written to --stats-out.
type Report struct {
	Timestamp      string              `json:"timestamp"`
	Submitted      uint64              `json:"submitted"`
	Accepted       uint64              `json:"accepted"`
	Confirmed      uint64              `json:"confirmed"`
	Failed         uint64              `json:"failed"`
	TimedOut       uint64              `json:"timed_out"`
	TotalTimeMs    int64               `json:"total_time_ms"`
	AvgLatencyMs   int64               `json:"avg_latency_ms"`
	TPS            float64             `json:"tps"`
	PeakInFlight   int64               `json:"peak_in_flight"`
	SubmitLatency  *types.LatencyStats `json:"submit_latency,omitempty"`
	ConfirmLatency *types.LatencyStats `json:"confirm_latency,omitempty"`
	Config         map[string]any      `json:"config,omitempty"`
}

// NewReport converts stats to its JSON form.
func NewReport(s *RunStats) Report {
	return Report{
		Timestamp:      s.Timestamp.Format(time.RFC3339),
		Submitted:      s.Submitted,
		Accepted:       s.Accepted,
		Confirmed:      s.Confirmed,
		Failed:         s.Failed,
		TimedOut:       s.TimedOut,
		TotalTimeMs:    s.Elapsed.Milliseconds(),
		AvgLatencyMs:   s.AvgLatency.Milliseconds(),
		TPS:            s.Throughput,
		PeakInFlight:   s.PeakInFlight,
		SubmitLatency:  s.SubmitLatency,
		ConfirmLatency: s.ConfirmLatency,
		Config:         s.Config,
	}
}

// WriteReport writes stats as indented JSON to path.
func WriteReport(path string, s *RunStats) error {
	data, err := json.MarshalIndent(NewReport(s), "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// PrintSummary writes a human-readable summary of stats to w.
func PrintSummary(w io.Writer, s *RunStats) {
	fmt.Fprintln(w, "\n=== Transaction Run Results ===")
	fmt.Fprintf(w, "Submitted:        %d\n", s.Submitted)
	fmt.Fprintf(w, "Accepted:         %d\n", s.Accepted)
	fmt.Fprintf(w, "Confirmed:        %d\n", s.Confirmed)
	fmt.Fprintf(w, "Failed:           %d\n", s.Failed)
	fmt.Fprintf(w, "Timed out:        %d\n", s.TimedOut)
	fmt.Fprintf(w, "Total time:       %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Average latency:  %s\n", s.AvgLatency.Round(time.Microsecond))
	fmt.Fprintf(w, "Throughput:       %.2f TPS\n", s.Throughput)
	fmt.Fprintf(w, "Peak in flight:   %d\n", s.PeakInFlight)
}

// LogSummary logs stats at INFO.
func LogSummary(logger *slog.Logger, s *RunStats) {
	logger.Info("Run complete",
		slog.Uint64("submitted", s.Submitted),
		slog.Uint64("accepted", s.Accepted),
		slog.Uint64("confirmed", s.Confirmed),
		slog.Uint64("failed", s.Failed),
		slog.Uint64("timed_out", s.TimedOut),
		slog.Duration("elapsed", s.Elapsed),
		slog.Duration("avg_latency", s.AvgLatency),
		slog.Float64("tps", s.Throughput))
}
