package observability

import (
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration      *prometheus.HistogramVec
	externalErrors       *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
	commissionsGenerated *prometheus.CounterVec
	sdrTransitions       *prometheus.CounterVec
	leadsScored          *prometheus.CounterVec
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
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		commissionsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_commissions_generated_total",
				Help: "Commission rows written, by kind (seller|sdr).",
			},
			[]string{"kind"},
		),
		sdrTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_sdr_assignment_transitions_total",
				Help: "SDR assignment lifecycle events.",
			},
			[]string{"event"},
		),
		leadsScored: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_leads_scored_total",
				Help: "Leads scored, by call site (sync|import|recalc).",
			},
			[]string{"source"},
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

// AddCommissions counts generated commission rows.
func (m *Metrics) AddCommissions(kind string, n int) {
	m.commissionsGenerated.WithLabelValues(kind).Add(float64(n))
}

// IncrSDRTransition counts created|approved|rejected|deleted events.
func (m *Metrics) IncrSDRTransition(event string) {
	m.sdrTransitions.WithLabelValues(event).Inc()
}

// AddLeadsScored counts scored leads per call site.
func (m *Metrics) AddLeadsScored(source string, n int) {
	m.leadsScored.WithLabelValues(source).Add(float64(n))
}

// GetOpsSnapshot returns the counters behind GET /v1/metrics/ops.
func (m *Metrics) GetOpsSnapshot() *domain.OpsMetrics {
	hits := getCounterValue(m.cacheHits, "revenue")
	misses := getCounterValue(m.cacheMisses, "revenue")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.OpsMetrics{
		SellerCommissionsGenerated: getCounterValue(m.commissionsGenerated, "seller"),
		SDRCommissionsGenerated:    getCounterValue(m.commissionsGenerated, "sdr"),
		SDRApproved:                getCounterValue(m.sdrTransitions, "approved"),
		SDRRejected:                getCounterValue(m.sdrTransitions, "rejected"),
		LeadsScored: getCounterValue(m.leadsScored, "sync") +
			getCounterValue(m.leadsScored, "import") +
			getCounterValue(m.leadsScored, "recalc"),
		RevenueCacheHitRate: hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
