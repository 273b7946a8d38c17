// Package metrics defines the Prometheus collectors a pool updates
// (SPEC_FULL.md §3, Observability surface): dispatch latency and command
// counts on every command completion, the OCC conflict counter on every
// dispatch-side conflict, and the queue-depth and worker-state gauges on
// the pool's periodic health tick. No HTTP listener is started here — OctopusDB has
// no network surface — the Registry is exposed so an embedding host can
// mount it on its own /metrics handler if it wants to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles the Prometheus instruments for one pool instance.
// Each pool owns its own prometheus.Registry rather than registering on
// prometheus.DefaultRegisterer, so multiple pools (or repeated test runs)
// never collide on metric registration the way a single long-lived
// process's global registry would assume.
type Collectors struct {
	Registry *prometheus.Registry

	DispatchLatency *prometheus.HistogramVec
	QueueDepth      prometheus.Gauge
	WorkerState     *prometheus.GaugeVec
	OCCConflicts    prometheus.Counter
	CommandsTotal   *prometheus.CounterVec
}

// New constructs and registers a fresh set of collectors under namespace
// (e.g. "octopusdb"). Each call returns independent instruments on an
// independent registry.
func New(namespace string) *Collectors {
	reg := prometheus.NewRegistry()

	c := &Collectors{
		Registry: reg,
		DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time from handing a command to an execution context to its completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks currently backlogged in the advanced task queue.",
		}),
		WorkerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_state",
			Help:      "Number of execution contexts currently in each state.",
		}, []string{"state"}),
		OCCConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "occ_conflicts_total",
			Help:      "Number of OCC Perform calls that returned Conflict.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched, partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(c.DispatchLatency, c.QueueDepth, c.WorkerState, c.OCCConflicts, c.CommandsTotal)
	return c
}
