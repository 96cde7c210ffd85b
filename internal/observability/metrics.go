package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/graphrag-gateway/internal/gateway/chain"
)

// Metrics owns a private registry so tests can create as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	chainAttempts *prometheus.CounterVec
	chainLatency  *prometheus.HistogramVec

	extractTotal    *prometheus.CounterVec
	extractAttempts prometheus.Histogram
	extractLatency  prometheus.Histogram

	retrieveTotal   *prometheus.CounterVec
	retrieveLatency prometheus.Histogram

	cypherRejected *prometheus.CounterVec
	authFailures   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "http_inflight_requests",
			Help:      "Requests currently being served.",
		}),
		chainAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "chain",
			Name:      "attempts_total",
			Help:      "Provider attempts by mode and outcome.",
		}, []string{"provider", "mode", "outcome"}),
		chainLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "chain",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of a single provider attempt.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"provider", "mode"}),
		extractTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "extract",
			Name:      "requests_total",
			Help:      "Extraction requests by accepting provider.",
		}, []string{"provider", "outcome"}),
		extractAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "extract",
			Name:      "attempts",
			Help:      "Attempts spent per extraction request.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12},
		}),
		extractLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "End-to-end extraction latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		retrieveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "retrieve",
			Name:      "requests_total",
			Help:      "Retrieval requests by outcome.",
		}, []string{"outcome"}),
		retrieveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "retrieve",
			Name:      "duration_seconds",
			Help:      "Retrieval latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		cypherRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "cypher",
			Name:      "rejected_total",
			Help:      "Queries refused by the safety gate, by matched keyword.",
		}, []string{"keyword"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Rejected API keys by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.chainAttempts, m.chainLatency,
		m.extractTotal, m.extractAttempts, m.extractLatency,
		m.retrieveTotal, m.retrieveLatency,
		m.cypherRejected, m.authFailures,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// ObserveAttempt implements chain.Observer.
func (m *Metrics) ObserveAttempt(rec chain.AttemptRecord) {
	if m == nil {
		return
	}
	m.chainAttempts.WithLabelValues(rec.ProviderID, string(rec.Mode), attemptOutcome(rec)).Inc()
	m.chainLatency.WithLabelValues(rec.ProviderID, string(rec.Mode)).Observe(rec.Elapsed.Seconds())
}

func attemptOutcome(rec chain.AttemptRecord) string {
	switch {
	case rec.Accepted:
		return "accepted"
	case rec.Defect != nil:
		return string(rec.Defect.Kind) + "_defect"
	case rec.ErrorKind != "":
		return string(rec.ErrorKind)
	case rec.Err != nil:
		return "error"
	default:
		return "cancelled"
	}
}

func (m *Metrics) ExtractDone(provider string, ok bool, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !ok {
		outcome, provider = "exhausted", "none"
	}
	m.extractTotal.WithLabelValues(provider, outcome).Inc()
	m.extractAttempts.Observe(float64(attempts))
	m.extractLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) RetrieveDone(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.retrieveTotal.WithLabelValues(outcome).Inc()
	m.retrieveLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) QueryRejected(keyword string) {
	if m != nil {
		m.cypherRejected.WithLabelValues(keyword).Inc()
	}
}

func (m *Metrics) AuthFailed(reason string) {
	if m != nil {
		m.authFailures.WithLabelValues(reason).Inc()
	}
}
