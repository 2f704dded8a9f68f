package observability

import (
	"time"

	"github.com/metalav/auditorias-bfa-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the back office.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	externalErrors      *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	exports             *prometheus.CounterVec
	auditsGenerated     prometheus.Counter
	rateLimitRejections *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metalav_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_audit_transitions_total",
				Help: "Audit status transitions by target status.",
			},
			[]string{"to"},
		),
		exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_report_exports_total",
				Help: "Report exports by format.",
			},
			[]string{"format"},
		),
		auditsGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metalav_audits_generated_total",
				Help: "Audits created by the monthly generation job.",
			},
		),
		rateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metalav_rate_limit_rejections_total",
				Help: "Requests rejected by a rate limiter.",
			},
			[]string{"limiter"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTransition counts an audit moving to status to.
func (m *Metrics) IncrTransition(to domain.AuditStatus) {
	m.transitions.WithLabelValues(string(to)).Inc()
}

// IncrExport counts a report export (json, pdf, xlsx, mensal_xlsx...).
func (m *Metrics) IncrExport(format string) {
	m.exports.WithLabelValues(format).Inc()
}

// AddAuditsGenerated adds n audits created by the monthly job.
func (m *Metrics) AddAuditsGenerated(n int) {
	m.auditsGenerated.Add(float64(n))
}

// IncrRateLimitRejection counts a request rejected by limiter.
func (m *Metrics) IncrRateLimitRejection(limiter string) {
	m.rateLimitRejections.WithLabelValues(limiter).Inc()
}

// Snapshot returns the counters shown by GET /api/diagnostico.
func (m *Metrics) Snapshot() domain.MetricsSnapshot {
	hits := sumCounterVec(m.cacheHits)
	misses := sumCounterVec(m.cacheMisses)

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return domain.MetricsSnapshot{
		ExternalErrors:      sumCounterVec(m.externalErrors),
		CacheHitRate:        hitRate,
		Transitions:         counterVecByLabel(m.transitions, "to"),
		Exports:             counterVecByLabel(m.exports, "format"),
		RateLimitRejections: sumCounterVec(m.rateLimitRejections),
	}
}

// counterVecByLabel reads every child of cv keyed by the given label.
func counterVecByLabel(cv *prometheus.CounterVec, label string) map[string]float64 {
	out := map[string]float64{}
	ch := make(chan prometheus.Metric, 32)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += m.Counter.GetValue()
			}
		}
	}
	return out
}

func sumCounterVec(cv *prometheus.CounterVec) float64 {
	total := float64(0)
	ch := make(chan prometheus.Metric, 32)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		total += m.Counter.GetValue()
	}
	return total
}
