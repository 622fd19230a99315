package circulate

import (
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/prometheus/client_golang/prometheus"
)

var operations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "circulate",
	Subsystem: "library",
	Name:      "operations_total",
	Help:      "Library operations by operation and result.",
}, []string{"operation", "result"})

var latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "circulate",
	Subsystem: "library",
	Name:      "operation_seconds",
	Help:      "Library operation latency.",
	Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
}, []string{"operation"})

// resultLabel maps an operation error to a low-cardinality label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return "validation"
	case core.KindNotFound:
		return "not_found"
	case core.KindConflict:
		return "conflict"
	case core.KindCapacity:
		return "capacity"
	case core.KindInvariant:
		return "invariant"
	}
	return "error"
}

// Collectors returns the library and index metrics.
func Collectors() []prometheus.Collector {
	return append([]prometheus.Collector{operations, latency}, index.Collectors()...)
}

// RegisterMetrics registers every catalog metric with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
