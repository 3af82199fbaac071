package fetch

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus sink for the fetch engine, generalizing
// the teacher's ProgressUpdate counters into exported gauges/counters
// suitable for a long-running mirror daemon.
type Metrics struct {
	BytesFetched  prometheus.Counter
	TasksInFlight prometheus.Gauge
	TasksFailed   prometheus.Counter
}

// NewMetrics constructs and registers a Metrics set on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid global-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BytesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omacore_fetch_bytes_total",
			Help: "Total bytes written to disk by the fetch engine.",
		}),
		TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "omacore_fetch_tasks_in_flight",
			Help: "Number of fetch tasks currently running.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omacore_fetch_tasks_failed_total",
			Help: "Total fetch tasks that ended in a terminal failure.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BytesFetched, m.TasksInFlight, m.TasksFailed)
	}
	return m
}
