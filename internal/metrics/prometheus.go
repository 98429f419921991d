// Package metrics provides Prometheus metrics for the shared-memory
// administration service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the administration service.
type Metrics struct {
	// Operation counters, one increment per call, labeled by outcome so a
	// single query can surface the failure kind breakdown ("ok" or a
	// shmemerr.Kind string: "INVALID_ARG", "NOT_FOUND", ...).
	CreateTotal  *prometheus.CounterVec
	UnlinkTotal  *prometheus.CounterVec
	InfoTotal    *prometheus.CounterVec
	AcquireTotal *prometheus.CounterVec
	ReleaseTotal *prometheus.CounterVec

	// OperationDuration tracks latency across all five operations, one
	// histogram labeled by operation name.
	OperationDuration *prometheus.HistogramVec

	// ResidencyFailuresTotal counts post-mbind validation failures, i.e.
	// cases where the kernel placed a page on a node other than the one
	// requested.
	ResidencyFailuresTotal prometheus.Counter

	// PolicyRestoreFailuresTotal counts failed attempts to restore a
	// thread's original NUMA memory policy during unwind. Every
	// occurrence also produces a Warnf log line; this counter lets
	// operators alert on it without scraping logs.
	PolicyRestoreFailuresTotal prometheus.Counter

	// RegionsActive is a point-in-time gauge of live named regions,
	// incremented on a successful Create and decremented on a successful
	// Unlink. It is a coarse approximation: it is not reconciled against
	// the filesystem on startup.
	RegionsActive *prometheus.GaugeVec

	NUMANodeCount prometheus.Gauge
	CPUCount      prometheus.Gauge
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "shmem_admin"
	}

	opCounter := func(name, help string) *prometheus.CounterVec {
		return promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			},
			[]string{"result"},
		)
	}

	return &Metrics{
		CreateTotal:  opCounter("create_total", "Total number of Create calls by result"),
		UnlinkTotal:  opCounter("unlink_total", "Total number of Unlink calls by result"),
		InfoTotal:    opCounter("info_total", "Total number of Info calls by result"),
		AcquireTotal: opCounter("acquire_total", "Total number of Acquire calls by result"),
		ReleaseTotal: opCounter("release_total", "Total number of Release calls by result"),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Administration operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ResidencyFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "residency_failures_total",
				Help:      "Total number of post-bind NUMA residency validation failures",
			},
		),

		PolicyRestoreFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_restore_failures_total",
				Help:      "Total number of failed attempts to restore the original memory policy during unwind",
			},
		),

		RegionsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "regions_active",
				Help:      "Number of named regions currently created, labeled by page size",
			},
			[]string{"page_size"},
		),

		NUMANodeCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "numa_node_count",
				Help:      "Number of NUMA nodes discovered at boot",
			},
		),

		CPUCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cpu_count",
				Help:      "Number of logical CPUs discovered at boot",
			},
		),
	}
}

// ObserveOperation records the outcome and duration of an administration
// operation. result should be "ok" or a shmemerr.Kind string.
func (m *Metrics) ObserveOperation(op, result string, durationSeconds float64) {
	m.OperationDuration.WithLabelValues(op).Observe(durationSeconds)

	var vec *prometheus.CounterVec
	switch op {
	case "create":
		vec = m.CreateTotal
	case "unlink":
		vec = m.UnlinkTotal
	case "info":
		vec = m.InfoTotal
	case "acquire":
		vec = m.AcquireTotal
	case "release":
		vec = m.ReleaseTotal
	default:
		return
	}
	vec.WithLabelValues(result).Inc()
}
