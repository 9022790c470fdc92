package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SetOperation     = "set"
	GetOperation     = "get"
	RemoveOperation  = "remove"
	CompactOperation = "compact"
	RotateOperation  = "rotate"
	RecoverOperation = "recover"
)

// Metrics holds the Prometheus collectors of one engine. An engine opened
// without WithMetrics gets a private, unregistered set.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Compactions       prometheus.Counter
	ReclaimedBytes    prometheus.Counter
	LiveKeys          prometheus.Gauge
	Segments          prometheus.Gauge
	TotalBytes        prometheus.Gauge
	StaleBytes        prometheus.Gauge
}

// NewMetrics builds an unregistered set of engine collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "number of engine operations by operation and result",
		}, []string{"operation", "result"}),

		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "how long it takes to perform an engine operation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"operation"}),

		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "compactions_total",
			Help:      "how many times the log has been compacted",
		}),

		ReclaimedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "reclaimed_bytes_total",
			Help:      "bytes of log space reclaimed by compaction",
		}),

		LiveKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "live_keys",
			Help:      "number of keys in the index",
		}),

		Segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "segments",
			Help:      "number of segment files",
		}),

		TotalBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "log_bytes",
			Help:      "bytes occupied by all segments",
		}),

		StaleBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kvs",
			Subsystem: "engine",
			Name:      "stale_bytes",
			Help:      "bytes occupied by superseded records and tombstones",
		}),
	}
}

// Collectors returns every collector, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Operations,
		m.OperationDuration,
		m.Compactions,
		m.ReclaimedBytes,
		m.LiveKeys,
		m.Segments,
		m.TotalBytes,
		m.StaleBytes,
	}
}

// Register registers every collector with r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
