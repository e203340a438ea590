// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notifier"

// Metrics groups the counters updated by the manager, the worker and the API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tasksEnqueued *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_enqueued_total",
			Help:      "Delivery tasks enqueued, by channel.",
		}, []string{"channel"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts handled by workers, by channel and result.",
		}, []string{"channel", "result"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API operations, by operation and status code.",
		}, []string{"operation", "status"}),
	}
	reg.MustRegister(m.tasksEnqueued, m.deliveries, m.apiRequests)
	return m
}

func (m *Metrics) TaskEnqueued(channel string) {
	if m == nil {
		return
	}
	m.tasksEnqueued.WithLabelValues(channel).Inc()
}

// Delivery records a handled message. result is "sent", "failed" or "dropped".
func (m *Metrics) Delivery(channel, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) APIRequest(operation string, status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}
