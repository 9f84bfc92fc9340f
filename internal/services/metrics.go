package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the memory engine
type Metrics struct {
	// Store path
	MessagesStored    *prometheus.CounterVec // labeled by role
	Promotions        prometheus.Counter
	StoreLatency      prometheus.Histogram

	// Retrieval path
	Retrievals        *prometheus.CounterVec // labeled by kind: similarity|activation
	RetrievalLatency  *prometheus.HistogramVec
	RetrievalDegraded prometheus.Counter
	CacheHits         prometheus.Counter

	// Consolidation
	ConsolidationRuns    *prometheus.CounterVec // labeled by outcome: ok|error|skipped
	SemanticCreated      prometheus.Counter
	ConsolidationLatency prometheus.Histogram

	// Forgetting
	MemoriesAged    prometheus.Counter
	MemoriesDeleted prometheus.Counter

	// Quota
	QuotaRejections *prometheus.CounterVec // labeled by operation
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		MessagesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_messages_stored_total",
			Help: "Total number of messages stored by role",
		}, []string{"role"}),

		Promotions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_longterm_promotions_total",
			Help: "Total number of messages promoted to long-term memory",
		}),

		StoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memoria_store_duration_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		Retrievals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_retrievals_total",
			Help: "Total number of retrievals by kind",
		}, []string{"kind"}),

		RetrievalLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memoria_retrieval_duration_seconds",
			Help:    "Retrieval latency in seconds by kind",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),

		RetrievalDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_retrievals_degraded_total",
			Help: "Total number of retrievals that degraded to an empty result",
		}),

		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_retrieval_cache_hits_total",
			Help: "Total number of similarity searches served from cache",
		}),

		ConsolidationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_consolidation_runs_total",
			Help: "Total number of consolidation runs by outcome",
		}, []string{"outcome"}),

		SemanticCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_semantic_memories_created_total",
			Help: "Total number of semantic memories created by consolidation",
		}),

		ConsolidationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "memoria_consolidation_duration_seconds",
			Help:    "Consolidation run latency in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),

		MemoriesAged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_memories_aged_total",
			Help: "Total number of memories whose retention weight was decayed",
		}),

		MemoriesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memoria_memories_deleted_total",
			Help: "Total number of memories deleted by cleanup or purge",
		}),

		QuotaRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memoria_quota_rejections_total",
			Help: "Total number of operations rejected by the per-user quota",
		}, []string{"operation"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordStore records a stored message and whether it was promoted.
func (m *Metrics) RecordStore(role string, promoted bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesStored.WithLabelValues(role).Inc()
	if promoted {
		m.Promotions.Inc()
	}
	m.StoreLatency.Observe(duration.Seconds())
}

// RecordRetrieval records one retrieval of the given kind.
func (m *Metrics) RecordRetrieval(kind string, fromCache, degraded bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(kind).Inc()
	m.RetrievalLatency.WithLabelValues(kind).Observe(duration.Seconds())
	if fromCache {
		m.CacheHits.Inc()
	}
	if degraded {
		m.RetrievalDegraded.Inc()
	}
}

// RecordConsolidation records one consolidation run.
func (m *Metrics) RecordConsolidation(outcome string, semanticCreated int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ConsolidationRuns.WithLabelValues(outcome).Inc()
	m.SemanticCreated.Add(float64(semanticCreated))
	m.ConsolidationLatency.Observe(duration.Seconds())
}

// RecordQuotaRejection records a quota-rejected operation.
func (m *Metrics) RecordQuotaRejection(operation string) {
	if m == nil {
		return
	}
	m.QuotaRejections.WithLabelValues(operation).Inc()
}
