package aether

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "aether"

type Metrics struct {
	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	NodesAlive     *prometheus.GaugeVec
	Terminations   *prometheus.CounterVec
	Explosions     prometheus.Counter
	Converted      prometheus.Counter
	Mutations      *prometheus.CounterVec
	Reloads        prometheus.Counter
	SkippedEntries prometheus.Counter
}

// NewMetrics builds the runtime collectors and registers them with reg when
// it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ticks_total",
			Help:      "Global ticks processed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one global tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		NodesAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "nodes_alive",
			Help:      "Live nodes by type.",
		}, []string{"type"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "node_terminations_total",
			Help:      "Node terminations by reason.",
		}, []string{"reason"}),
		Explosions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "explosions_total",
			Help:      "Explosions triggered by unstable nodes.",
		}),
		Converted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "corruption_converted_total",
			Help:      "Aspect amount converted into the corruption aspect.",
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "corruption_mutations_total",
			Help:      "Environmental mutations attempted by result.",
		}, []string{"result"}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rule_reloads_total",
			Help:      "Rule table generations published.",
		}),
		SkippedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rule_entries_skipped_total",
			Help:      "Catalog entries skipped during reloads.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Ticks, m.TickDuration, m.NodesAlive, m.Terminations, m.Explosions,
			m.Converted, m.Mutations, m.Reloads, m.SkippedEntries,
		)
	}
	return m
}
