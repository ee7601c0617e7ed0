// Package metrics exposes Prometheus collectors for the HTTP surface and
// the scraping pipeline, registered on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "topicwatch"

// Collector bundles all application metrics behind one registry.
type Collector struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	itemsDiscovered    *prometheus.CounterVec
	eventsExtracted    *prometheus.CounterVec
	extractionFailures *prometheus.CounterVec

	eventsCreated *prometheus.CounterVec
	eventsMerged  *prometheus.CounterVec
}

// NewCollector constructs the collector and registers every metric.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"source_id", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{1, 5, 15, 60, 120, 300, 600, 1200},
		}, []string{"source_id"}),
		itemsDiscovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "items_discovered_total",
			Help:      "Content items produced by discovery.",
		}, []string{"source_id"}),
		eventsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "events_extracted_total",
			Help:      "Candidate events produced by extraction.",
		}, []string{"source_id"}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "extraction_failures_total",
			Help:      "Item-level extraction failures.",
		}, []string{"source_id"}),
		eventsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consolidation",
			Name:      "events_created_total",
			Help:      "Canonical events founded from extractions.",
		}, []string{"topic_id"}),
		eventsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consolidation",
			Name:      "events_merged_total",
			Help:      "Extractions merged into existing canonical events.",
		}, []string{"topic_id"}),
	}

	for _, collector := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.runsTotal, c.runDuration,
		c.itemsDiscovered, c.eventsExtracted, c.extractionFailures,
		c.eventsCreated, c.eventsMerged,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// RunStarted is part of the pipeline recorder contract.
func (c *Collector) RunStarted(sourceID string) {
	c.runsTotal.WithLabelValues(sourceID, "started").Inc()
}

// RunFinished records the terminal status and duration of a run.
func (c *Collector) RunFinished(sourceID string, success bool, duration time.Duration) {
	status := "failed"
	if success {
		status = "succeeded"
	}
	c.runsTotal.WithLabelValues(sourceID, status).Inc()
	c.runDuration.WithLabelValues(sourceID).Observe(duration.Seconds())
}

// ItemsDiscovered counts items produced by one discovery pass.
func (c *Collector) ItemsDiscovered(sourceID string, n int) {
	c.itemsDiscovered.WithLabelValues(sourceID).Add(float64(n))
}

// EventsExtracted counts candidate events produced by one run.
func (c *Collector) EventsExtracted(sourceID string, n int) {
	c.eventsExtracted.WithLabelValues(sourceID).Add(float64(n))
}

// ExtractionFailures counts item-level extraction failures in one run.
func (c *Collector) ExtractionFailures(sourceID string, n int) {
	c.extractionFailures.WithLabelValues(sourceID).Add(float64(n))
}

// EventCreated counts canonical events founded during consolidation.
func (c *Collector) EventCreated(topicID string) {
	c.eventsCreated.WithLabelValues(topicID).Inc()
}

// EventMerged counts extractions merged into existing events.
func (c *Collector) EventMerged(topicID string) {
	c.eventsMerged.WithLabelValues(topicID).Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
