// Package metrics holds the Prometheus collectors for ingestion.
//
// Collectors are registered on first use with the default registry, which
// promhttp.Handler serves when metrics.addr is configured.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ingestionMetrics struct {
	once sync.Once

	stageRuns      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	documents      *prometheus.CounterVec
	chunks         *prometheus.CounterVec
	embedBatches   *prometheus.CounterVec
	embedErrors    *prometheus.CounterVec
	embedDuration  *prometheus.HistogramVec
	prsExamined    prometheus.Counter
	fetchWarnings  *prometheus.CounterVec
	githubRequests *prometheus.CounterVec
	githubQuota    prometheus.Gauge
}

var m ingestionMetrics

func (m *ingestionMetrics) init() {
	m.once.Do(func() {
		m.stageRuns = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_stage_runs_total", Help: "Stage runs by stage and final status"}, []string{"stage", "status"})
		m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "repolens_stage_seconds", Help: "Stage wall-clock duration", Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 480, 900}}, []string{"stage"})
		m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_documents_fetched_total", Help: "Documents produced by fetchers"}, []string{"source"})
		m.chunks = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_chunks_stored_total", Help: "Chunks upserted into the vector store"}, []string{"source"})
		m.embedBatches = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_embed_batches_total", Help: "Embedding sub-batches sent"}, []string{"provider"})
		m.embedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_embed_errors_total", Help: "Embedding failures by provider and class"}, []string{"provider", "class"})
		m.embedDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "repolens_embed_seconds", Help: "Embedding sub-batch duration", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}}, []string{"provider"})
		m.prsExamined = prometheus.NewCounter(prometheus.CounterOpts{Name: "repolens_prs_examined_total", Help: "Pull requests examined by the bounded scan"})
		m.fetchWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_fetch_warnings_total", Help: "Limits applied silently during fetch"}, []string{"source"})
		m.githubRequests = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "repolens_github_requests_total", Help: "GitHub API requests by endpoint"}, []string{"endpoint"})

		m.githubQuota = prometheus.NewGauge(prometheus.GaugeOpts{Name: "repolens_github_quota_remaining", Help: "GitHub API requests left in the current window"})

		prometheus.MustRegister(
			m.stageRuns, m.stageDuration,
			m.documents, m.chunks,
			m.embedBatches, m.embedErrors, m.embedDuration,
			m.prsExamined, m.fetchWarnings, m.githubRequests, m.githubQuota,
		)
	})
}

// ObserveStage records a finished stage run.
func ObserveStage(stage, status string, d time.Duration) {
	m.init()
	m.stageRuns.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddDocuments counts fetched documents.
func AddDocuments(source string, n int) {
	m.init()
	m.documents.WithLabelValues(source).Add(float64(n))
}

// AddChunks counts stored chunks.
func AddChunks(source string, n int) {
	m.init()
	m.chunks.WithLabelValues(source).Add(float64(n))
}

// ObserveEmbedBatch records one embedding sub-batch.
func ObserveEmbedBatch(provider string, d time.Duration) {
	m.init()
	m.embedBatches.WithLabelValues(provider).Inc()
	m.embedDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// EmbedError counts a failed embedding call. class is "quota" or "transient".
func EmbedError(provider, class string) {
	m.init()
	m.embedErrors.WithLabelValues(provider, class).Inc()
}

// PRExamined counts one pull request examined by the scan.
func PRExamined() {
	m.init()
	m.prsExamined.Inc()
}

// FetchWarning counts one silently applied limit.
func FetchWarning(source string) {
	m.init()
	m.fetchWarnings.WithLabelValues(source).Inc()
}

// GitHubRequest counts one GitHub API request.
func GitHubRequest(endpoint string) {
	m.init()
	m.githubRequests.WithLabelValues(endpoint).Inc()
}

// GitHubQuota records the remaining GitHub API quota.
func GitHubQuota(remaining int) {
	m.init()
	m.githubQuota.Set(float64(remaining))
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	m.init()
	return promhttp.Handler()
}
