// Package metrics declares the indexer's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CheckpointsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_checkpoints_processed_total", Help: "Checkpoints run through a pipeline's processor"},
		[]string{"pipeline"},
	)
	RecordsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_records_extracted_total", Help: "Records produced by processors"},
		[]string{"pipeline"},
	)
	DecodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_decode_failures_total", Help: "Matching events skipped because their payload did not decode"},
		[]string{"event"},
	)
	RowsInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_rows_inserted_total", Help: "Rows newly inserted; duplicates are not counted"},
		[]string{"pipeline"},
	)
	CommitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_commit_total", Help: "Batch commit attempts"},
		[]string{"pipeline", "status"},
	)
	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "suiverify_commit_duration_seconds", Help: "Batch commit latency", Buckets: prometheus.DefBuckets},
		[]string{"pipeline", "status"},
	)
	Watermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "suiverify_watermark_checkpoint", Help: "Highest committed checkpoint"},
		[]string{"pipeline"},
	)
	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suiverify_publish_total", Help: "Broadcast messages by outcome"},
		[]string{"channel", "status"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		CheckpointsProcessed, RecordsExtracted, DecodeFailures, RowsInserted,
		CommitTotal, CommitDuration, Watermark, PublishTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}
