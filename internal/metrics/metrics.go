// Package metrics exposes Prometheus instrumentation for the daemon
// and the HTTP API. Every instance carries its own registry so tests
// never collide on the global default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	// Queue and worker activity.
	JobsClaimed   prometheus.Counter
	JobsCompleted *prometheus.CounterVec // labels: job_type, status
	JobDuration   *prometheus.HistogramVec
	JobsReleased  prometheus.Counter

	// Indexing throughput.
	FilesIndexed  prometheus.Counter
	EdgesResolved prometheus.Counter

	// Embedding pipeline.
	EmbedBatches prometheus.Counter
	EmbedVectors prometheus.Counter
	EmbedReused  prometheus.Counter

	// Retrieval.
	SearchRequests *prometheus.CounterVec // label: kind (chunks, documents, pattern)
	SearchDuration prometheus.Histogram
	SearchDegraded prometheus.Counter

	// Watcher.
	WatcherBatches prometheus.Counter
}

// New builds a metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		JobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_jobs_claimed_total",
			Help: "Jobs claimed from the queue",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codemap_jobs_completed_total",
			Help: "Jobs finished, by type and terminal status",
		}, []string{"job_type", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codemap_job_duration_seconds",
			Help:    "Wall time of job execution, by type",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13min
		}, []string{"job_type"}),
		JobsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_jobs_released_total",
			Help: "Claimed jobs released back to pending by the health monitor",
		}),
		FilesIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_files_indexed_total",
			Help: "Files parsed and stored",
		}),
		EdgesResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_edges_resolved_total",
			Help: "Reference edges resolved to a target symbol",
		}),
		EmbedBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_embed_batches_total",
			Help: "Provider embedding batches sent",
		}),
		EmbedVectors: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_embed_vectors_total",
			Help: "Vectors obtained from the provider",
		}),
		EmbedReused: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_embed_reused_total",
			Help: "Embeddings reused via content hash instead of provider calls",
		}),
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codemap_search_requests_total",
			Help: "Hybrid search requests, by target kind",
		}, []string{"kind"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "codemap_search_duration_seconds",
			Help:    "Hybrid search latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		SearchDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_search_degraded_total",
			Help: "Searches served full-text only because the vector leg was down",
		}),
		WatcherBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "codemap_watcher_batches_total",
			Help: "Debounced watcher batches dispatched to the queue",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
