package metrics

import "time"

// Operations recorded by episode sinks.
const (
	OpCatalogInsert  = "catalog_insert"
	OpMQTTPublish    = "mqtt_publish"
	OpArchiveUpload  = "archive_upload"
	OpRetentionPrune = "retention_prune"
)

// Operation outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Histogram bucket configuration.
const (
	// BucketStart10ms starts 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms starts episode length histograms (100ms to ~14min).
	BucketStart100ms = 0.1
	// BucketStart1KB starts size histograms (1KB to ~1GB range).
	BucketStart1KB = 1024.0

	BucketFactor2 = 2

	BucketCount12 = 12
	BucketCount14 = 14
	BucketCount20 = 20
)

// ShutdownTimeout bounds graceful shutdown of metric endpoints.
const ShutdownTimeout = 5 * time.Second
