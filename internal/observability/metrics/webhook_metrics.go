package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config scopes metric labels to a service instance.
type Config struct {
	ServiceName string
	Environment string
}

// WebhookMetrics counts inbound provider webhook outcomes.
type WebhookMetrics struct {
	processed *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	rejected  *prometheus.CounterVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetrics     *WebhookMetrics
)

func Webhook() *WebhookMetrics {
	return WebhookWithConfig(Config{})
}

func WebhookWithConfig(cfg Config) *WebhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetrics = newWebhookMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return webhookMetrics
}

func ResetWebhookMetricsForTest() {
	webhookMetricsOnce = sync.Once{}
	webhookMetrics = nil
}

func newWebhookMetrics(registerer prometheus.Registerer, cfg Config) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "packhey"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "development"
	}
	constLabels := prometheus.Labels{
		"service":     serviceName,
		"environment": environment,
	}

	m := &WebhookMetrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "webhook_events_processed_total",
			Help:        "Webhook events applied successfully.",
			ConstLabels: constLabels,
		}, []string{"provider", "event_type"}),
		duplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "webhook_events_duplicate_total",
			Help:        "Webhook redeliveries that were deliberately no-op'd.",
			ConstLabels: constLabels,
		}, []string{"provider", "event_type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "webhook_events_rejected_total",
			Help:        "Webhook requests rejected before any state mutation.",
			ConstLabels: constLabels,
		}, []string{"provider", "reason"}),
	}

	for _, collector := range []prometheus.Collector{m.processed, m.duplicate, m.rejected} {
		if err := registerer.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
		}
	}
	return m
}

func (m *WebhookMetrics) Processed(provider, eventType string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(provider, eventType).Inc()
}

func (m *WebhookMetrics) Duplicate(provider, eventType string) {
	if m == nil {
		return
	}
	m.duplicate.WithLabelValues(provider, eventType).Inc()
}

func (m *WebhookMetrics) Rejected(provider, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(provider, reason).Inc()
}
