package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pwbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pwbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	registryNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pwbridge",
			Subsystem: "registry",
			Name:      "notifications_total",
			Help:      "Registry notifications observed by the bridge.",
		},
		[]string{"kind", "type"},
	)
	translationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pwbridge",
			Subsystem: "registry",
			Name:      "translation_failures_total",
			Help:      "Add notifications dropped because a required property was missing or invalid.",
		},
		[]string{"type", "field"},
	)
	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pwbridge",
			Subsystem: "ui",
			Name:      "events_emitted_total",
			Help:      "Envelopes handed to the UI sink.",
		},
		[]string{"event"},
	)
	uiClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pwbridge",
			Subsystem: "ui",
			Name:      "clients",
			Help:      "Connected UI stream clients.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			registryNotifications,
			translationFailures,
			eventsEmitted,
			uiClients,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordNotification counts one registry add or remove callback.
func RecordNotification(kind, objectType string) {
	RegisterMetrics()
	registryNotifications.WithLabelValues(kind, objectType).Inc()
}

func RecordTranslationFailure(objectType, field string) {
	RegisterMetrics()
	translationFailures.WithLabelValues(objectType, field).Inc()
}

func RecordEmitted(event string) {
	RegisterMetrics()
	eventsEmitted.WithLabelValues(event).Inc()
}

func SetUIClients(n int) {
	RegisterMetrics()
	uiClients.Set(float64(n))
}
