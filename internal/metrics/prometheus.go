package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds the dispatcher's Prometheus metrics.
type PrometheusMetrics struct {
	TxTotal *prometheus.CounterVec

	InFlight  prometheus.Gauge
	TargetTPS prometheus.Gauge
	RunState  *prometheus.GaugeVec

	SubmitLatency  *prometheus.HistogramVec
	ConfirmLatency *prometheus.HistogramVec
	RPCLatency     *prometheus.HistogramVec

	ErrorsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all metrics on reg, or on the
// default registerer when reg is nil.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TxTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txdispatch_transactions_total",
				Help: "Transactions by outcome status and run kind",
			},
			[]string{"status", "kind"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txdispatch_in_flight",
				Help: "Units currently holding a dispatch slot",
			},
		),

		TargetTPS: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "txdispatch_target_tps",
				Help: "Configured target rate (0 means unbounded)",
			},
		),

		RunState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "txdispatch_run_state",
				Help: "Current run state (1 if active, 0 otherwise)",
			},
			[]string{"state"},
		),

		SubmitLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txdispatch_submit_latency_seconds",
				Help:    "Sign plus submit latency per unit",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 1, 5},
			},
			[]string{"kind"},
		),

		ConfirmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txdispatch_confirmation_latency_seconds",
				Help:    "Submission to receipt latency",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txdispatch_rpc_latency_seconds",
				Help:    "RPC call latency by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "status"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txdispatch_errors_total",
				Help: "Unit failures by error category",
			},
			[]string{"category", "kind"},
		),
	}
}

// RecordTx counts a transaction outcome.
func (m *PrometheusMetrics) RecordTx(status, kind string) {
	m.TxTotal.WithLabelValues(status, kind).Inc()
}

// RecordSubmitLatency records sign plus submit latency.
func (m *PrometheusMetrics) RecordSubmitLatency(kind string, latencySeconds float64) {
	m.SubmitLatency.WithLabelValues(kind).Observe(latencySeconds)
}

// RecordConfirmLatency records confirmation latency.
func (m *PrometheusMetrics) RecordConfirmLatency(kind string, latencySeconds float64) {
	m.ConfirmLatency.WithLabelValues(kind).Observe(latencySeconds)
}

// knownRPCMethods bounds the method label's cardinality.
var knownRPCMethods = map[string]bool{
	"eth_sendRawTransaction":    true,
	"eth_getTransactionCount":   true,
	"eth_chainId":               true,
	"eth_getCode":               true,
	"eth_gasPrice":              true,
	"eth_getBalance":            true,
	"eth_getTransactionReceipt": true,
	"batch":                     true,
}

// RecordRPCLatency records RPC call latency. Unknown methods are bucketed
// as "other".
func (m *PrometheusMetrics) RecordRPCLatency(method string, success bool, latencySeconds float64) {
	bucketedMethod := method
	if !knownRPCMethods[method] {
		bucketedMethod = "other"
	}

	status := "success"
	if !success {
		status = "error"
	}
	m.RPCLatency.WithLabelValues(bucketedMethod, status).Observe(latencySeconds)
}

// RecordError counts a unit failure.
func (m *PrometheusMetrics) RecordError(category, kind string) {
	m.ErrorsTotal.WithLabelValues(category, kind).Inc()
}

// SetInFlight updates the in-flight gauge.
func (m *PrometheusMetrics) SetInFlight(n int64) {
	m.InFlight.Set(float64(n))
}

// SetTargetTPS updates the target rate gauge.
func (m *PrometheusMetrics) SetTargetTPS(tps float64) {
	m.TargetTPS.Set(tps)
}

// SetRunState sets state to 1 and every other state to 0.
func (m *PrometheusMetrics) SetRunState(state string) {
	for _, s := range []string{"idle", "initializing", "running", "confirming", "completed", "error"} {
		if s == state {
			m.RunState.WithLabelValues(s).Set(1)
		} else {
			m.RunState.WithLabelValues(s).Set(0)
		}
	}
}
