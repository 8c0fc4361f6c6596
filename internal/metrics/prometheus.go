package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visitgate"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// visits counts pipeline runs.
	// Labels:
	//   - category: Mobile, Tablet or Desktop
	//   - brand: sajpe, business or community
	visits *prometheus.CounterVec

	pipelineDuration prometheus.Histogram
	identityDegraded prometheus.Counter

	// locationResolved counts final location results.
	// Label:
	//   - source: gps, ip or none
	locationResolved *prometheus.CounterVec

	// providerAttempts counts individual IP-geolocation calls.
	// Labels:
	//   - provider: configured provider name
	//   - outcome: success or failed
	providerAttempts *prometheus.CounterVec
	locationCacheHit prometheus.Counter

	redirectDecisions *prometheus.CounterVec

	// reportsSubmitted counts fire-and-forget submissions per sink.
	// Labels:
	//   - sink: collector or stream
	//   - status: success or dropped
	reportsSubmitted *prometheus.CounterVec
	reportsProcessed *prometheus.CounterVec
	reportBatchSize  prometheus.Histogram
	reportQueueDepth prometheus.Gauge

	rateLimited prometheus.Counter
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus registers all collectors on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		visits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_total",
			Help:      "Total number of visits processed by the pipeline.",
		}, []string{"category", "brand"}),
		pipelineDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time from visit arrival to routing decision.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		}),
		identityDegraded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_degraded_total",
			Help:      "Visits that proceeded with an anonymous identity.",
		}),
		locationResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_resolved_total",
			Help:      "Location results by source tier.",
		}, []string{"source"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geo_provider_attempts_total",
			Help:      "IP-geolocation provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		locationCacheHit: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_cache_hits_total",
			Help:      "IP lookups answered from cache.",
		}),
		redirectDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirect_decisions_total",
			Help:      "Routing decisions by kind.",
		}, []string{"kind"}),
		reportsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Visit report submissions per sink.",
		}, []string{"sink", "status"}),
		reportsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_processed_total",
			Help:      "Stream reports handled by the persistence worker.",
		}, []string{"status"}),
		reportBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_batch_size",
			Help:      "Number of reports persisted per batch.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		reportQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_queue_depth",
			Help:      "Reports pending in the visit stream.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncVisit(category, brand string) {
	p.visits.WithLabelValues(category, brand).Inc()
}

func (p *PrometheusRecorder) ObservePipelineDuration(d time.Duration) {
	p.pipelineDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncIdentityDegraded() { p.identityDegraded.Inc() }

func (p *PrometheusRecorder) IncLocationResolved(source string) {
	p.locationResolved.WithLabelValues(source).Inc()
}

func (p *PrometheusRecorder) IncProviderAttempt(provider, outcome string) {
	p.providerAttempts.WithLabelValues(provider, outcome).Inc()
}

func (p *PrometheusRecorder) IncLocationCacheHit() { p.locationCacheHit.Inc() }

func (p *PrometheusRecorder) IncRedirectDecision(kind string) {
	p.redirectDecisions.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncReportSubmitted(sink, status string) {
	p.reportsSubmitted.WithLabelValues(sink, status).Inc()
}

func (p *PrometheusRecorder) IncReportProcessed(status string) {
	p.reportsProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveReportBatchSize(size int) {
	p.reportBatchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) SetReportQueueDepth(depth int64) {
	p.reportQueueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) IncRateLimited() { p.rateLimited.Inc() }
