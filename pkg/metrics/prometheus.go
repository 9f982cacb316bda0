// Package metrics provides Prometheus instrumentation for an Otters pipeline.
package metrics

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsProcessed counts total rows processed by each stage.
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otters_rows_processed_total",
		Help: "Total number of rows processed by stage",
	}, []string{"stage_id", "stage_name"})

	// BatchesProcessed counts total batches processed by each stage.
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otters_batches_processed_total",
		Help: "Total number of batches processed by stage",
	}, []string{"stage_id", "stage_name"})

	// BatchLatency tracks per-batch processing latency.
	BatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "otters_batch_latency_seconds",
		Help:    "Latency of batch processing in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	}, []string{"stage_id", "stage_name"})

	// Errors counts errors by stage.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otters_errors_total",
		Help: "Total number of errors by stage",
	}, []string{"stage_id", "stage_name"})

	// GCPauseSummary tracks GC pause durations.
	GCPauseSummary = promauto.NewSummary(prometheus.SummaryOpts{
		Name:       "otters_gc_pause_seconds",
		Help:       "GC pause duration in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})
)

// ServeMetrics starts an HTTP server on the given address to serve
// Prometheus metrics at /metrics, and starts a background sampler that
// observes GC pause durations into GCPauseSummary.
func ServeMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go server.ListenAndServe()
	go sampleGCPauses(5 * time.Second)
	return server
}

// sampleGCPauses polls runtime/debug's GC stats on a fixed interval and
// feeds any pauses observed since the last poll into GCPauseSummary.
func sampleGCPauses(interval time.Duration) {
	var stats debug.GCStats
	debug.ReadGCStats(&stats)
	lastNumGC := stats.NumGC

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		debug.ReadGCStats(&stats)
		n := stats.NumGC - lastNumGC
		if n <= 0 {
			continue
		}
		if n > int64(len(stats.Pause)) {
			n = int64(len(stats.Pause))
		}
		for i := int64(0); i < n; i++ {
			GCPauseSummary.Observe(stats.Pause[i].Seconds())
		}
		lastNumGC = stats.NumGC
	}
}
