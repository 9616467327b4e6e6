package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"PDFAnnouncer/internal/domain"
	"PDFAnnouncer/internal/ports"
)

// Metrics collects run counters in a private registry and pushes them to a Pushgateway.
type Metrics struct {
	registry *prometheus.Registry
	gateway  string
	job      string
	log      *slog.Logger

	publishTotal *prometheus.CounterVec
	documents    *prometheus.GaugeVec
	duration     prometheus.Gauge
	lastSuccess  prometheus.Gauge
	committed    prometheus.Gauge
}

var _ ports.MetricsSink = (*Metrics)(nil)

// NewMetrics registers the collectors; gateway may be empty to disable pushing.
func NewMetrics(gateway, job string, log *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		gateway:  gateway,
		job:      job,
		log:      log.With("component", "metrics"),
		publishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pdfannouncer",
				Name:      "publish_total",
				Help:      "Publish attempts by platform and result",
			},
			[]string{"platform", "result"},
		),
		documents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pdfannouncer",
				Name:      "run_documents",
				Help:      "Documents seen by the last run, by stage",
			},
			[]string{"stage"},
		),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfannouncer",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfannouncer",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that did not fail",
		}),
		committed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdfannouncer",
			Name:      "run_committed",
			Help:      "1 when the last run wrote the ledger back",
		}),
	}
}

// ObserveOutcome counts one publish attempt.
func (m *Metrics) ObserveOutcome(outcome domain.PublishOutcome) {
	result := "success"
	if !outcome.Succeeded() {
		result = string(outcome.Err.Reason)
	}
	m.publishTotal.WithLabelValues(string(outcome.Platform), result).Inc()
}

// ObserveRun records the run summary and pushes everything when a gateway is set.
func (m *Metrics) ObserveRun(s ports.RunSummary) {
	m.documents.WithLabelValues("listed").Set(float64(s.Listed))
	m.documents.WithLabelValues("new").Set(float64(s.New))
	m.documents.WithLabelValues("retried").Set(float64(s.Retried))
	m.documents.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.duration.Set(s.Duration.Seconds())
	if s.Committed {
		m.committed.Set(1)
	} else {
		m.committed.Set(0)
	}
	if !s.Failed {
		m.lastSuccess.SetToCurrentTime()
	}

	if err := m.Push(); err != nil {
		m.log.Warn("push metrics failed", "error", err)
	}
}

// Push sends the registry to the Pushgateway.
func (m *Metrics) Push() error {
	if m.gateway == "" {
		return nil
	}
	if err := push.New(m.gateway, m.job).Gatherer(m.registry).Push(); err != nil {
		return fmt.Errorf("push to %s: %w", m.gateway, err)
	}
	return nil
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ ports.MetricsSink = NopMetrics{}

func (NopMetrics) ObserveOutcome(domain.PublishOutcome) {}

func (NopMetrics) ObserveRun(ports.RunSummary) {}
