package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion and feed pipeline metrics.
var (
	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knowdex",
			Name:      "documents_ingested_total",
			Help:      "Total documents processed by the ingestion pipeline",
		},
		[]string{"result"}, // "stored" / "skipped" / "failed"
	)

	ChunksStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "knowdex",
			Name:      "chunks_stored_total",
			Help:      "Total chunks written to the vector store",
		},
	)

	FeedRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knowdex",
			Name:      "feed_runs_total",
			Help:      "Total scheduled feed runs",
		},
		[]string{"result"}, // "success" / "error"
	)

	FeedItemsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knowdex",
			Name:      "feed_items_processed_total",
			Help:      "Total feed items handled by scheduled runs",
		},
		[]string{"result"}, // "processed" / "failed"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knowdex",
			Name:      "generation_requests_total",
			Help:      "Total chat completion requests",
		},
		[]string{"provider", "model", "status"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestionMetrics registers pipeline metrics. Must be called once from main.
func RegisterIngestionMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(DocumentsIngestedTotal)
	prometheus.MustRegister(ChunksStoredTotal)
	prometheus.MustRegister(FeedRunsTotal)
	prometheus.MustRegister(FeedItemsProcessedTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	ingestMetricsRegistered = true
}
