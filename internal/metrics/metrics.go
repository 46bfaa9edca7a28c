// Package metrics exposes graph server counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one graph server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	nodes       *prometheus.GaugeVec
	edges       *prometheus.GaugeVec
	loadedLines *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphps",
			Name:      "requests_total",
			Help:      "RPCs dispatched, by command and response code.",
		}, []string{"command", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphps",
			Name:      "request_duration_seconds",
			Help:      "RPC handling latency by command.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"command"}),
		nodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "graphps",
			Name:      "table_nodes",
			Help:      "Nodes stored per table.",
		}, []string{"table"}),
		edges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "graphps",
			Name:      "table_edges",
			Help:      "Edges stored per table.",
		}, []string{"table"}),
		loadedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphps",
			Name:      "loaded_lines_total",
			Help:      "Source lines read by bulk loads, per table.",
		}, []string{"table"}),
	}
	reg.MustRegister(m.requests, m.latency, m.nodes, m.edges, m.loadedLines)
	return m
}

// ObserveRequest records one dispatched request.
func (m *Metrics) ObserveRequest(command string, code int32, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, strconv.Itoa(int(code))).Inc()
	m.latency.WithLabelValues(command).Observe(d.Seconds())
}

// SetTableSize records a table's node and edge counts.
func (m *Metrics) SetTableSize(table uint32, nodes, edges int64) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(uint64(table), 10)
	m.nodes.WithLabelValues(label).Set(float64(nodes))
	m.edges.WithLabelValues(label).Set(float64(edges))
}

// AddLoadedLines counts source lines read by a load.
func (m *Metrics) AddLoadedLines(table uint32, n int) {
	if m == nil {
		return
	}
	m.loadedLines.WithLabelValues(strconv.FormatUint(uint64(table), 10)).Add(float64(n))
}
