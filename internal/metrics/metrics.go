// Package metrics exports monitor counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ethosumonitor/internal/common"
)

// Metrics holds the monitor's collectors in a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Polls        prometheus.Counter
	PollDuration prometheus.Histogram
	Records      prometheus.Counter
	Samples      prometheus.Counter
	Diagnostics  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	return &Metrics{
		registry: registry,

		Polls: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "ethosu_monitor_polls_total",
				Help: "Total number of ring buffer polls",
			},
		),

		PollDuration: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ethosu_monitor_poll_duration_seconds",
				Help:    "Time spent reading new records per poll",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		Records: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "ethosu_monitor_records_total",
				Help: "Total number of event records read",
			},
		),

		Samples: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "ethosu_monitor_samples_total",
				Help: "Total number of profiling samples written",
			},
		),

		Diagnostics: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ethosu_monitor_diagnostics_total",
				Help: "Diagnostics raised, by error code",
			},
			[]string{"code"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ErrorLogger counts every error by code and passes it on to next.
func (m *Metrics) ErrorLogger(next common.ErrorLogger) common.ErrorLogger {
	return common.ErrorLoggerFunc(func(err *common.Error) {
		if err == nil {
			return
		}
		m.Diagnostics.WithLabelValues(err.Code.Error()).Inc()
		if next != nil {
			next.LogError(err)
		}
	})
}
