package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics is the API-side registry: request traffic plus the
// retrieval, conversation, ingestion and QA counters recorded by the
// HTTP adapter.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestInFlight  prometheus.Gauge
	rateLimitedTotal *prometheus.CounterVec

	searchTotal    *prometheus.CounterVec
	searchChunks   *prometheus.HistogramVec
	searchDuration *prometheus.HistogramVec

	turnTotal      *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	turnSummarized *prometheus.CounterVec

	ingestDocumentsTotal *prometheus.CounterVec

	qaSelectedTotal *prometheus.CounterVec
	qaReviewsTotal  *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "companion",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total requests rejected by the per-client rate limiter.",
		},
		[]string{"service", "path"},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "rag",
			Name:      "searches_total",
			Help:      "Total knowledge searches by outcome.",
		},
		[]string{"service", "outcome"},
	)
	searchChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "rag",
			Name:      "retrieved_chunks",
			Help:      "Distribution of retrieved chunks per search.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "rag",
			Name:      "search_duration_seconds",
			Help:      "Knowledge search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	turnTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total orchestrated conversation turns by outcome.",
		},
		[]string{"service", "outcome"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end conversation turn duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"service"},
	)
	turnSummarized := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "conversation",
			Name:      "summarized_total",
			Help:      "Total replies shortened to fit the personality word budget.",
		},
		[]string{"service"},
	)
	ingestDocumentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total documents ingested through the API by status.",
		},
		[]string{"service", "status"},
	)
	qaSelectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "qa",
			Name:      "selected_total",
			Help:      "Total messages selected for QA review.",
		},
		[]string{"service"},
	)
	qaReviewsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "qa",
			Name:      "reviews_total",
			Help:      "Total completed QA reviews by terminal status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		rateLimitedTotal,
		searchTotal,
		searchChunks,
		searchDuration,
		turnTotal,
		turnDuration,
		turnSummarized,
		ingestDocumentsTotal,
		qaSelectedTotal,
		qaReviewsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		rateLimitedTotal:     rateLimitedTotal,
		searchTotal:          searchTotal,
		searchChunks:         searchChunks,
		searchDuration:       searchDuration,
		turnTotal:            turnTotal,
		turnDuration:         turnDuration,
		turnSummarized:       turnSummarized,
		ingestDocumentsTotal: ingestDocumentsTotal,
		qaSelectedTotal:      qaSelectedTotal,
		qaReviewsTotal:       qaReviewsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
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
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses per-entity URL segments so metric label
// cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/threads/") && strings.HasSuffix(path, "/messages"):
		return "/v1/threads/{id}/messages"
	case strings.HasPrefix(path, "/v1/messages/") && strings.HasSuffix(path, "/feedback"):
		return "/v1/messages/{id}/feedback"
	case strings.HasPrefix(path, "/v1/qa/messages/") && strings.HasSuffix(path, "/start"):
		return "/v1/qa/messages/{id}/start"
	case strings.HasPrefix(path, "/v1/qa/messages/") && strings.HasSuffix(path, "/review"):
		return "/v1/qa/messages/{id}/review"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRateLimited(service, path string) {
	m.rateLimitedTotal.WithLabelValues(service, normalizePath(path)).Inc()
}

func (m *HTTPServerMetrics) RecordSearch(service string, hits int, duration time.Duration) {
	outcome := "hit"
	if hits == 0 {
		outcome = "empty"
	}
	m.searchTotal.WithLabelValues(service, outcome).Inc()
	m.searchChunks.WithLabelValues(service).Observe(float64(hits))
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordTurn(service string, fallbackUsed, wasSummarized bool, duration time.Duration) {
	outcome := "answered"
	if fallbackUsed {
		outcome = "fallback"
	}
	m.turnTotal.WithLabelValues(service, outcome).Inc()
	m.turnDuration.WithLabelValues(service).Observe(duration.Seconds())
	if wasSummarized {
		m.turnSummarized.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordIngestBatch(service string, succeeded, failed int) {
	if succeeded > 0 {
		m.ingestDocumentsTotal.WithLabelValues(service, "ready").Add(float64(succeeded))
	}
	if failed > 0 {
		m.ingestDocumentsTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
}

func (m *HTTPServerMetrics) RecordQASelection(service string, count int) {
	if count <= 0 {
		return
	}
	m.qaSelectedTotal.WithLabelValues(service).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordQAReview(service, status string) {
	if status == "" {
		status = "unknown"
	}
	m.qaReviewsTotal.WithLabelValues(service, status).Inc()
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
