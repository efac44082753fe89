package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

type RetrievalMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal        *prometheus.CounterVec
	retrievalDuration     *prometheus.HistogramVec
	retrievedChunks       *prometheus.HistogramVec
	subQueries            *prometheus.HistogramVec
	strategyFailuresTotal *prometheus.CounterVec
	emptyContextTotal     *prometheus.CounterVec
}

func NewRetrievalMetrics(service string) *RetrievalMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ke",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ke",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ke",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval calls by query type and outcome.",
		},
		[]string{"service", "query_type", "outcome"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "query_type"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "result_chunks",
			Help:      "Distribution of result chunks per retrieval call.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "query_type"},
	)
	subQueries := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "sub_queries",
			Help:      "Distribution of sub-queries per retrieval call.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	strategyFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "strategy_failures_total",
			Help:      "Total soft strategy failures by strategy.",
		},
		[]string{"service", "strategy"},
	)
	emptyContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ke",
			Subsystem: "retrieval",
			Name:      "empty_context_total",
			Help:      "Total retrieval calls that produced no context.",
		},
		[]string{"service", "query_type"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievedChunks,
		subQueries,
		strategyFailuresTotal,
		emptyContextTotal,
	)

	return &RetrievalMetrics{
		registry:              registry,
		requestTotal:          requestTotal,
		requestDuration:       requestDuration,
		requestInFlight:       requestInFlight,
		retrievalTotal:        retrievalTotal,
		retrievalDuration:     retrievalDuration,
		retrievedChunks:       retrievedChunks,
		subQueries:            subQueries,
		strategyFailuresTotal: strategyFailuresTotal,
		emptyContextTotal:     emptyContextTotal,
	}
}

func (m *RetrievalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *RetrievalMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *RetrievalMetrics) RecordRetrieval(service string, queryType domain.QueryType, resultCount, subQueryCount int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	qt := string(queryType)
	if qt == "" {
		qt = "unknown"
	}

	m.retrievalTotal.WithLabelValues(service, qt, outcome).Inc()
	if err != nil {
		return
	}

	m.retrievalDuration.WithLabelValues(service, qt).Observe(duration.Seconds())
	m.retrievedChunks.WithLabelValues(service, qt).Observe(float64(resultCount))
	if subQueryCount > 0 {
		m.subQueries.WithLabelValues(service).Observe(float64(subQueryCount))
	}
	if resultCount == 0 {
		m.emptyContextTotal.WithLabelValues(service, qt).Inc()
	}
}

func (m *RetrievalMetrics) RecordStrategyFailure(service string, strategy domain.Strategy) {
	name := string(strategy)
	if name == "" {
		name = "unknown"
	}
	m.strategyFailuresTotal.WithLabelValues(service, name).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
