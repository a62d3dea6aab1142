package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	TGIncomingUpdates  *prometheus.CounterVec
	TGOutgoingMessages *prometheus.CounterVec
	ProviderRequests   *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	ProviderRetries    *prometheus.CounterVec
	JournalSaves       *prometheus.CounterVec
	WizardSessions     *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			TGIncomingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_incoming_updates_total",
				Help:      "Total incoming Telegram updates processed.",
			}, []string{"type"}),
			TGOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_outgoing_messages_total",
				Help:      "Total outgoing Telegram messages sent.",
			}, []string{"type"}),
			ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total payment provider requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency distribution for payment provider requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			ProviderRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_retries_total",
				Help:      "Total retried payment provider requests by endpoint.",
			}, []string{"endpoint"}),
			JournalSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_saves_total",
				Help:      "Total journal persistence attempts by outcome.",
			}, []string{"status"}),
			WizardSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wizard_sessions_total",
				Help:      "Total wizard session lifecycle events by kind and outcome.",
			}, []string{"kind", "outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.TGIncomingUpdates,
			metricsInstance.TGOutgoingMessages,
			metricsInstance.ProviderRequests,
			metricsInstance.ProviderLatency,
			metricsInstance.ProviderRetries,
			metricsInstance.JournalSaves,
			metricsInstance.WizardSessions,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
