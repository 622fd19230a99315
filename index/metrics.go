package index

import "github.com/prometheus/client_golang/prometheus"

var updates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "circulate",
	Subsystem: "index",
	Name:      "updates_total",
	Help:      "Index membership changes applied, by attribute and operation.",
}, []string{"attribute", "op"})

var failures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "circulate",
	Subsystem: "index",
	Name:      "failures_total",
	Help:      "Index membership changes that failed, by attribute.",
}, []string{"attribute"})

// Collectors returns the index metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{updates, failures}
}
