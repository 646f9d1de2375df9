// Package metrics exposes Prometheus instrumentation for the proxy's
// admission, dispatch, and registry state, served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stacklok/balancer/internal/registry"
)

// Registry is the Prometheus collector registry metrics are registered
// against. A package-level default registry is used so cmd/balancer can
// mount promhttp.HandlerFor without threading a registry through every
// constructor.
var Registry = prometheus.NewRegistry()

var (
	requestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "balancer_requests_total",
		Help: "Total proxied requests by service class and outcome.",
	}, []string{"service_class", "outcome"})

	admissionWaitSeconds = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balancer_admission_wait_seconds",
		Help:    "Time a request spent waiting in the admission queue before a node was found or it timed out.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service_class"})

	dispatchDurationSeconds = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balancer_dispatch_duration_seconds",
		Help:    "Duration of the outbound call to a backend node.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service_class"})

	nodesGauge = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "balancer_nodes",
		Help: "Current node count by service class and health state.",
	}, []string{"service_class", "health"})

	evictionsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "balancer_evictions_total",
		Help: "Total nodes evicted by the janitor, by service class.",
	}, []string{"service_class"})
)

// Outcome labels for RequestsTotal.
const (
	OutcomeSuccess    = "success"
	OutcomeNoCapacity = "no_capacity"
	OutcomeBackendErr = "backend_error"
	OutcomeClientGone = "client_gone"
)

// ObserveRequest records the terminal outcome of one proxied request.
func ObserveRequest(class registry.ServiceClass, outcome string) {
	requestsTotal.WithLabelValues(string(class), outcome).Inc()
}

// ObserveAdmissionWait records how long a request waited in the queue.
func ObserveAdmissionWait(class registry.ServiceClass, seconds float64) {
	admissionWaitSeconds.WithLabelValues(string(class)).Observe(seconds)
}

// ObserveDispatch records the duration of one outbound backend call.
func ObserveDispatch(class registry.ServiceClass, seconds float64) {
	dispatchDurationSeconds.WithLabelValues(string(class)).Observe(seconds)
}

// ObserveEviction records the janitor removing n stale nodes.
func ObserveEviction(class registry.ServiceClass, n int) {
	if n == 0 {
		return
	}
	evictionsTotal.WithLabelValues(string(class)).Add(float64(n))
}

// SetNodeCounts overwrites the current gauge snapshot for a class from a
// fresh registry.Snapshot() call.
func SetNodeCounts(class registry.ServiceClass, records []registry.Record) {
	counts := map[registry.HealthState]int{}
	for _, r := range records {
		counts[r.Health.State]++
	}
	nodesGauge.WithLabelValues(string(class), registry.Available.String()).Set(float64(counts[registry.Available]))
	nodesGauge.WithLabelValues(string(class), registry.Busy.String()).Set(float64(counts[registry.Busy]))
	nodesGauge.WithLabelValues(string(class), registry.Failed.String()).Set(float64(counts[registry.Failed]))
}
