package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	uploadDurationBucketStart  = 0.5
	uploadDurationBucketFactor = 2.0
	uploadDurationBucketCount  = 12
)

const (
	transcriptionBucketStart  = 1.0
	transcriptionBucketFactor = 2.0
	transcriptionBucketCount  = 10
)

var UploadDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "upload_pipeline_duration_seconds",
		Help: "Time taken to run the upload pipeline for one session",
		Buckets: prometheus.ExponentialBuckets(
			uploadDurationBucketStart,
			uploadDurationBucketFactor,
			uploadDurationBucketCount,
		),
	},
	[]string{"outcome"},
)

var TranscriptionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "transcription_duration_seconds",
		Help: "Time taken to fetch a transcript for one recording",
		Buckets: prometheus.ExponentialBuckets(
			transcriptionBucketStart,
			transcriptionBucketFactor,
			transcriptionBucketCount,
		),
	},
)

var TransferRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "object_transfer_retries_total",
		Help: "Number of retried byte-transfer attempts",
	},
)

var PendingQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "pending_uploads_queue_depth",
		Help: "Number of queued pending uploads in the local cache",
	},
)

var ObjectStoreOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "objectstore_operation_duration_seconds",
		Help:    "Duration of object store operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation"},
)

func init() {
	prometheus.MustRegister(UploadDuration)
	prometheus.MustRegister(TranscriptionDuration)
	prometheus.MustRegister(TransferRetries)
	prometheus.MustRegister(PendingQueueDepth)
	prometheus.MustRegister(ObjectStoreOperationDuration)
}
