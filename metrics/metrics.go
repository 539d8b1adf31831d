// Package metrics exposes Prometheus counters for decisions, batches,
// event publishing, model fitting and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irrigation"

// Recorder owns a private registry so tests and multiple servers in one
// process never collide on registration
type Recorder struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	unknownCrops    prometheus.Counter
	batchRows       *prometheus.CounterVec
	batchFailures   prometheus.Counter
	publishFailures prometheus.Counter
	fitSeconds      prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a Recorder with Go runtime and process collectors attached
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions produced, by back-end mode and verdict.",
		}, []string{"mode", "verdict"}),
		unknownCrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_crops_total",
			Help:      "Crop names that fell back to the default index.",
		}),
		batchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Rows decided in batch queries, by mode.",
		}, []string{"mode"}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Batch queries aborted on invalid input.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Decision events that could not be published.",
		}),
		fitSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_fit_seconds",
			Help:      "Wall time of the last classifier fit.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route pattern and status code.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		r.decisions, r.unknownCrops, r.batchRows, r.batchFailures,
		r.publishFailures, r.fitSeconds, r.httpRequests, r.httpDuration,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Decision(mode, verdict string) {
	r.decisions.WithLabelValues(mode, verdict).Inc()
}

func (r *Recorder) UnknownCrop() { r.unknownCrops.Inc() }

func (r *Recorder) BatchRows(mode string, n int) {
	r.batchRows.WithLabelValues(mode).Add(float64(n))
}

func (r *Recorder) BatchFailure() { r.batchFailures.Inc() }

func (r *Recorder) PublishFailure() { r.publishFailures.Inc() }

func (r *Recorder) ModelFit(d time.Duration) { r.fitSeconds.Set(d.Seconds()) }

// Request records one served HTTP request
func (r *Recorder) Request(route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
