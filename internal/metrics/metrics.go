package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdf_extractor"

// Recorder holds the pipeline's Prometheus collectors. Each Recorder owns its
// registry so tests can create as many as they like.
type Recorder struct {
	registry *prometheus.Registry

	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	pages          prometheus.Counter
	chunks         *prometheus.CounterVec
	backendCalls   *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	tokens         prometheus.Counter
	inFlight       prometheus.Gauge
	cacheLookups   *prometheus.CounterVec
}

// NewRecorder creates a recorder with process and Go runtime collectors registered
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final state.",
		}, []string{"state"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"state"}),
		pages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_rasterized_total",
			Help:      "Pages rendered to images.",
		}),
		chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks extracted by outcome.",
		}, []string{"outcome"}),
		backendCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_calls_total",
			Help:      "Extraction backend calls by backend and result.",
		}, []string{"backend", "result"}),
		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Latency of single extraction backend calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"backend"}),
		tokens: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Tokens reported by the extraction backend.",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_calls_in_flight",
			Help:      "Backend calls currently holding a concurrency permit.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// All methods are nil-safe so components can run without a recorder.

func (r *Recorder) RunFinished(state string, d time.Duration) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(state).Inc()
	r.runDuration.WithLabelValues(state).Observe(d.Seconds())
}

func (r *Recorder) PagesRasterized(n int) {
	if r == nil {
		return
	}
	r.pages.Add(float64(n))
}

func (r *Recorder) ChunkDone(success bool) {
	if r == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	r.chunks.WithLabelValues(outcome).Inc()
}

func (r *Recorder) BackendCall(backend, result string, d time.Duration, tokens int) {
	if r == nil {
		return
	}
	r.backendCalls.WithLabelValues(backend, result).Inc()
	r.backendLatency.WithLabelValues(backend).Observe(d.Seconds())
	if tokens > 0 {
		r.tokens.Add(float64(tokens))
	}
}

func (r *Recorder) CallStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Recorder) CallFinished() {
	if r == nil {
		return
	}
	r.inFlight.Dec()
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}
