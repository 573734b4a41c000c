package alivescan

import "github.com/prometheus/client_golang/prometheus"

const (
	metricNamePublished   = "alivescan_hosts_published_total"
	metricNameDead        = "alivescan_hosts_dead_total"
	metricNameProbesSent  = "alivescan_probes_sent_total"
	metricNameSendErrors  = "alivescan_send_errors_total"
	metricNameQueueErrors = "alivescan_queue_errors_total"
	metricNameCapReached  = "alivescan_cap_reached_total"
	metricNameRunDuration = "alivescan_run_duration_seconds"

	metricLabelMethod = "method"
	metricLabelCap    = "cap"
)

// Metrics groups the Prometheus collectors the engine reports against, following the
// constructor-plus-explicit-Register pattern doublezero's monitor/internet-telemetry
// package uses rather than promauto's package-global registration: a fresh ScanConfig gets
// a fresh Metrics, so repeated scans (and tests) never collide on collector registration.
type Metrics struct {
	HostsPublished prometheus.Counter
	HostsDead      prometheus.Counter
	ProbesSent     *prometheus.CounterVec
	SendErrors     *prometheus.CounterVec
	QueueErrors    prometheus.Counter
	CapReached     *prometheus.CounterVec
	RunDuration    prometheus.Histogram
}

// NewMetrics constructs the engine's collectors and, if r is non-nil, registers them
// against it. Passing a nil registerer (the default when a ScanConfig leaves Metrics unset)
// is valid: the collectors still work, they are simply not exported anywhere.
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		HostsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricNamePublished,
			Help: "Total number of hosts published to the output queue as alive",
		}),
		HostsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricNameDead,
			Help: "Total number of hosts reported dead at the end of a run",
		}),
		ProbesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricNameProbesSent,
			Help: "Total number of probes emitted, by method",
		}, []string{metricLabelMethod}),
		SendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricNameSendErrors,
			Help: "Total number of probe send failures, by method",
		}, []string{metricLabelMethod}),
		QueueErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricNameQueueErrors,
			Help: "Total number of failures publishing to the output queue",
		}),
		CapReached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricNameCapReached,
			Help: "Total number of runs that hit a restriction cap, by cap kind",
		}, []string{metricLabelCap}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricNameRunDuration,
			Help:    "Duration of a full scan run, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
	}
	if r != nil {
		m.Register(r)
	}
	return m
}

// Register registers every collector against r. Call at most once per registerer per
// Metrics instance -- it uses MustRegister, so a second call against the same registerer
// panics on the duplicate collectors.
func (m *Metrics) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.HostsPublished,
		m.HostsDead,
		m.ProbesSent,
		m.SendErrors,
		m.QueueErrors,
		m.CapReached,
		m.RunDuration,
	)
}
