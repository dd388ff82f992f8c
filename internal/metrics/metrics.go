// Package metrics exposes Prometheus counters for the workspace. When
// metrics are disabled every call goes to a no-op recorder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Save kinds.
const (
	SaveAuto   = "auto"
	SaveManual = "manual"
)

// Recorder is what the rest of the code reports to.
type Recorder interface {
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, duration time.Duration)
	IncSaves(kind string)
	IncSaveFailures(kind string)
	IncBackupsWritten()
	IncFormat(ok bool)
}

// Prometheus is the Recorder backed by client_golang.
type Prometheus struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	saves           *prometheus.CounterVec
	saveFailures    *prometheus.CounterVec
	backupsWritten  prometheus.Counter
	formats         *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New returns a Prometheus recorder registered on reg when enabled, and a
// no-op recorder otherwise.
func New(enabled bool, reg *prometheus.Registry) Recorder {
	if !enabled {
		return Noop{}
	}

	f := promauto.With(reg)
	return &Prometheus{
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsnip_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlsnip_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsnip_saves_total",
			Help: "Snippet saves by kind (auto, manual)",
		}, []string{"kind"}),

		saveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsnip_save_failures_total",
			Help: "Failed snippet saves by kind (auto, manual)",
		}, []string{"kind"}),

		backupsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "sqlsnip_backups_written_total",
			Help: "Recovery backups written by the auto-save scheduler",
		}),

		formats: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsnip_format_total",
			Help: "Format requests by outcome",
		}, []string{"outcome"}),

		gatherer: reg,
	}
}

func (m *Prometheus) IncRequestsTotal(route string, status int) {
	m.requestsTotal.WithLabelValues(route, httpStatusBucket(status)).Inc()
}

func (m *Prometheus) ObserveRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Prometheus) IncSaves(kind string) {
	m.saves.WithLabelValues(kind).Inc()
}

func (m *Prometheus) IncSaveFailures(kind string) {
	m.saveFailures.WithLabelValues(kind).Inc()
}

func (m *Prometheus) IncBackupsWritten() {
	m.backupsWritten.Inc()
}

func (m *Prometheus) IncFormat(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.formats.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop discards everything. Used when metrics are disabled and in tests.
type Noop struct{}

func (Noop) IncRequestsTotal(_ string, _ int)                 {}
func (Noop) ObserveRequestDuration(_ string, _ time.Duration) {}
func (Noop) IncSaves(_ string)                                {}
func (Noop) IncSaveFailures(_ string)                         {}
func (Noop) IncBackupsWritten()                               {}
func (Noop) IncFormat(_ bool)                                 {}
