package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	DocumentsFailed    metric.Int64Counter
	ProcessingDuration metric.Float64Histogram
	VectorsStored      metric.Int64Counter
	IndexBatches       metric.Int64Counter
}

// InitMetrics initializes all pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("grant-platform-backend")

	documentsProcessed, err := meter.Int64Counter(
		"documents.processed.total",
		metric.WithDescription("Documents that reached a terminal success state"),
	)
	if err != nil {
		return nil, err
	}

	documentsFailed, err := meter.Int64Counter(
		"documents.failed.total",
		metric.WithDescription("Documents that reached the failed state"),
	)
	if err != nil {
		return nil, err
	}

	processingDuration, err := meter.Float64Histogram(
		"documents.processing.duration",
		metric.WithDescription("Per-document processing stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	vectorsStored, err := meter.Int64Counter(
		"vectors.stored.total",
		metric.WithDescription("Chunk vectors written to the primary store"),
	)
	if err != nil {
		return nil, err
	}

	indexBatches, err := meter.Int64Counter(
		"index.batches.total",
		metric.WithDescription("External index file batches submitted"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsProcessed: documentsProcessed,
		DocumentsFailed:    documentsFailed,
		ProcessingDuration: processingDuration,
		VectorsStored:      vectorsStored,
		IndexBatches:       indexBatches,
	}, nil
}

// RecordStage records the duration of one processing stage for a document.
func (m *Metrics) RecordStage(stage, class string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("pipeline.stage", stage),
		attribute.String("document.class", class),
	}
	m.ProcessingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordOutcome records a terminal processing outcome.
func (m *Metrics) RecordOutcome(class, status string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("document.class", class),
		attribute.String("document.status", status),
	}
	if status == "failed" {
		m.DocumentsFailed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
		return
	}
	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordVectors records chunk vectors written for a document.
func (m *Metrics) RecordVectors(class string, count int64) {
	if m == nil {
		return
	}
	m.VectorsStored.Add(context.Background(), count,
		metric.WithAttributes(attribute.String("document.class", class)))
}

// RecordIndexBatch records one external index batch submission.
func (m *Metrics) RecordIndexBatch(status string) {
	if m == nil {
		return
	}
	m.IndexBatches.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("batch.status", status)))
}
