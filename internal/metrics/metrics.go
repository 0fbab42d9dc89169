// Package metrics holds the Prometheus collectors for the scrape pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "iomjobs"

// Metrics holds the pipeline counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FetchTotal        *prometheus.CounterVec
	ScrapeRunsTotal   *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	JobsUpsertedTotal *prometheus.CounterVec
	EnrichmentTotal   *prometheus.CounterVec
	JobsExpiredTotal  prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_total",
			Help:      "Page fetches by outcome",
		}, []string{"outcome"}),
		ScrapeRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scrape_runs_total",
			Help:      "Finished runs by type and final status",
		}, []string{"url_type", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of scrape, enrichment and reparse runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"url_type"}),
		JobsUpsertedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_upserted_total",
			Help:      "Job rows written, split into inserts and updates",
		}, []string{"op"}),
		EnrichmentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "enrichment_total",
			Help:      "Per-record enrichment results",
		}, []string{"result"}),
		JobsExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "jobs_expired_total",
			Help:      "Jobs deactivated by the expiry sweep",
		}),
	}
}

func (m *Metrics) ObserveFetch(outcome string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRun(urlType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapeRunsTotal.WithLabelValues(urlType, status).Inc()
	m.RunDuration.WithLabelValues(urlType).Observe(d.Seconds())
}

func (m *Metrics) ObserveUpsert(inserted, updated int) {
	if m == nil {
		return
	}
	m.JobsUpsertedTotal.WithLabelValues("insert").Add(float64(inserted))
	m.JobsUpsertedTotal.WithLabelValues("update").Add(float64(updated))
}

func (m *Metrics) ObserveEnrichment(result string) {
	if m == nil {
		return
	}
	m.EnrichmentTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveExpired(n int) {
	if m == nil {
		return
	}
	m.JobsExpiredTotal.Add(float64(n))
}
