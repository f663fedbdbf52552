package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "surgical"

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CasesCreatedTotal prometheus.Counter
	CaseUpdatesTotal  prometheus.Counter
	NoticesTotal      *prometheus.CounterVec

	AlertsSentTotal  prometheus.Counter
	SweepDuration    prometheus.Histogram
	SweepErrorsTotal prometheus.Counter

	SummaryRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector registers every metric on its own registry so that several
// collectors (one per test) can coexist in a process.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		CasesCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "created_total",
			Help:      "Total number of surgical cases created.",
		}),

		CaseUpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cases",
			Name:      "updates_total",
			Help:      "Total number of accepted case updates.",
		}),

		NoticesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notices",
			Name:      "emitted_total",
			Help:      "Notices emitted by severity.",
		}, []string{"severity"}),

		AlertsSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Cases alerted for exceeding the review threshold.",
		}),

		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sweep_duration_seconds",
			Help:      "Alert sweep latency distribution.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		SweepErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sweep_errors_total",
			Help:      "Alert sweeps that failed to run.",
		}),

		SummaryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summary",
			Name:      "requests_total",
			Help:      "Summary generation requests by outcome.",
		}, []string{"outcome"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
