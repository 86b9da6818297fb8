package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the monitoring counters exported on /metrics:
//   - admwatch_checks_total{result}
//   - admwatch_status_changes_total{type}
//   - admwatch_notifications_total{channel,result}
//   - admwatch_fetch_duration_seconds
type Metrics struct {
	Checks        *prometheus.CounterVec
	StatusChanges *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	FetchDuration prometheus.Histogram
}

// NewMetrics registers the collectors on reg. A nil reg uses a private
// registry, which keeps tests and one-shot CLI runs isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admwatch_checks_total",
			Help: "School page checks by result",
		}, []string{"result"}),
		StatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admwatch_status_changes_total",
			Help: "Detected application status changes by notification type",
		}, []string{"type"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admwatch_notifications_total",
			Help: "Notification delivery attempts by channel and result",
		}, []string{"channel", "result"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "admwatch_fetch_duration_seconds",
			Help:    "Duration of school page fetches",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (m *Metrics) check(result string) {
	if m != nil {
		m.Checks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) fetched(d time.Duration) {
	if m != nil {
		m.FetchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) statusChange(typ string) {
	if m != nil {
		m.StatusChanges.WithLabelValues(typ).Inc()
	}
}

// Delivered lets the notification dispatcher report channel outcomes.
func (m *Metrics) Delivered(channel string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(channel, result).Inc()
}
