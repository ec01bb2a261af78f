package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	AlertsTotal *prometheus.CounterVec

	ConfigReloadsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New регистрирует метрики в дефолтном реестре prometheus.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry is used by tests, each test gets its own registry.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completion_gateway_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "completion_gateway_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "completion_gateway_requests_in_flight",
				Help: "Number of requests currently being processed",
			},
		),

		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completion_gateway_upstream_requests_total",
				Help: "Total number of completion provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),
		UpstreamRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "completion_gateway_upstream_request_duration_seconds",
				Help:    "Completion provider call duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		AlertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completion_gateway_alerts_total",
				Help: "Total number of failure alerts by delivery result",
			},
			[]string{"result"},
		),

		ConfigReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "completion_gateway_config_reloads_total",
				Help: "Total number of config reload attempts by result",
			},
			[]string{"result"},
		),

		gatherer: gatherer,
	}

	return m
}

// Handler exposes the registry this Metrics was created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordUpstream records one provider call; outcome is "success" or a failure kind.
func (m *Metrics) RecordUpstream(provider, outcome string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(provider, outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordAlert(result string) {
	m.AlertsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordReload(result string) {
	m.ConfigReloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}
