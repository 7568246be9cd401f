// Package metrics exposes Prometheus instrumentation for the alert engine.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vigil"

// Metrics holds the engine collectors and their private registry.
type Metrics struct {
	registry *prometheus.Registry

	alertsTriggered      *prometheus.CounterVec
	ruleEvaluations      *prometheus.CounterVec
	ruleSkips            *prometheus.CounterVec
	activeAlerts         prometheus.Gauge
	notifications        *prometheus.CounterVec
	notificationDuration *prometheus.HistogramVec
	historyWrites        *prometheus.CounterVec
	historyEntries       prometheus.Gauge
	snapshots            *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		alertsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Total number of alerts fired",
		}, []string{"severity", "type"}),
		ruleEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Rule evaluations by outcome",
		}, []string{"result"}),
		ruleSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_skips_total",
			Help:      "Rule evaluations skipped by throttling",
		}, []string{"reason"}),
		activeAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts currently triggered or acknowledged",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by channel and status",
		}, []string{"channel", "status"}),
		notificationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Notification send duration",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"channel"}),
		historyWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History persistence attempts by status",
		}, []string{"status"}),
		historyEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Entries retained in the alert history log",
		}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots received by source",
		}, []string{"source"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AlertTriggered(severity, alertType string) {
	if m == nil {
		return
	}
	m.alertsTriggered.WithLabelValues(severity, alertType).Inc()
}

func (m *Metrics) RuleEvaluated(matched bool) {
	if m == nil {
		return
	}
	result := "miss"
	if matched {
		result = "match"
	}
	m.ruleEvaluations.WithLabelValues(result).Inc()
}

func (m *Metrics) RuleSkipped(reason string) {
	if m == nil {
		return
	}
	m.ruleSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetActiveAlerts(n int) {
	if m == nil {
		return
	}
	m.activeAlerts.Set(float64(n))
}

func (m *Metrics) NotificationSent(channel string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, status(success)).Inc()
	m.notificationDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) HistoryWrite(success bool, entries int) {
	if m == nil {
		return
	}
	m.historyWrites.WithLabelValues(status(success)).Inc()
	m.historyEntries.Set(float64(entries))
}

func (m *Metrics) SnapshotReceived(source string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(source).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
