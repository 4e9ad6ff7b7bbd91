package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinicnotify"

// Metrics holds the Prometheus collectors of the reminder pipeline. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	RemindersScheduled   prometheus.Counter
	ReminderScanFailed   prometheus.Counter
	PushDeliveries       *prometheus.CounterVec
	SubscriptionsPruned  prometheus.Counter
	NotificationsDrained prometheus.Counter
	FallbackDeliveries   *prometheus.CounterVec
}

// New creates a metrics instance with process and Go collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RemindersScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_scheduled_total",
			Help:      "Reminder records created by the scanner",
		}),
		ReminderScanFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_scan_failures_total",
			Help:      "Appointments skipped by the scanner because of an error",
		}),
		PushDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_deliveries_total",
			Help:      "Web push attempts by outcome",
		}, []string{"result"}), // delivered, gone, failed
		SubscriptionsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_subscriptions_pruned_total",
			Help:      "Subscriptions deleted after a permanent-gone response",
		}),
		NotificationsDrained: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_drained_total",
			Help:      "Due notifications marked sent by the drainer",
		}),
		FallbackDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_deliveries_total",
			Help:      "SMS and email fallback attempts by channel and outcome",
		}, []string{"channel", "result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
