package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
	"grant-platform-backend/internal/telemetry"
	"grant-platform-backend/models"
)

// TaskDispatcher hands queue entries to the background task transport.
type TaskDispatcher interface {
	DispatchExtraction(ctx context.Context, entry *models.QueueEntry) error
	DispatchVectorization(ctx context.Context, entry *models.QueueEntry) error
}

// Outcome reports where a pipeline stage left the queue entry.
type Outcome struct {
	Status string
	Err    error
}

// Pipeline runs the two processing stages of a queue entry: extraction
// (bytes to text) and vectorization (text to stored vectors plus the
// external index mirror). Callers claim the entry before invoking a stage;
// the pipeline owns every status written afterwards.
type Pipeline struct {
	docs        DocumentStore
	queue       QueueStore
	blobs       BlobStore
	extractor   *TextExtractor
	chunker     *TextChunker
	embedder    Embedder
	sink        VectorSink
	events      EventLog
	metrics     *telemetry.Metrics
	bucket      string
	maxAttempts int
}

func NewPipeline(
	cfg *config.Config,
	docs DocumentStore,
	queue QueueStore,
	blobs BlobStore,
	extractor *TextExtractor,
	chunker *TextChunker,
	embedder Embedder,
	sink VectorSink,
	events EventLog,
	metrics *telemetry.Metrics,
) *Pipeline {
	return &Pipeline{
		docs:        docs,
		queue:       queue,
		blobs:       blobs,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		sink:        sink,
		events:      events,
		metrics:     metrics,
		bucket:      cfg.StorageBucket,
		maxAttempts: cfg.MaxProcessingAttempts,
	}
}

// RunExtraction loads the entry's document bytes, extracts plain text, and
// advances the entry to extracted. The caller must have claimed the entry
// into the extracting state.
func (p *Pipeline) RunExtraction(ctx context.Context, entry *models.QueueEntry) Outcome {
	ctx, span := otel.Tracer("grant-platform-backend").Start(ctx, "pipeline.extract")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", entry.DocumentID))

	start := time.Now()
	class := entry.DocumentClass

	doc, _, err := p.docs.FindDocument(ctx, entry.DocumentID)
	if err != nil {
		// A queue entry pointing at a missing document can never succeed.
		return p.recordFailure(ctx, entry, "Text extraction failed", err, true)
	}

	data, err := p.blobs.Get(p.bucket, doc.FilePath)
	if err != nil {
		return p.recordFailure(ctx, entry, "Text extraction failed", err, false)
	}

	text, err := p.extractor.Extract(data, doc.FileType)
	if err != nil {
		return p.recordFailure(ctx, entry, "Text extraction failed", err, IsFatalExtractionError(err))
	}

	if err := p.docs.SetExtracted(ctx, class, doc.ID, text); err != nil {
		return p.recordFailure(ctx, entry, "Text extraction failed", err, false)
	}
	if err := p.queue.Update(ctx, entry.ID, models.StatusExtracted, entry.Attempts, ""); err != nil {
		return Outcome{Status: models.StatusExtracting, Err: err}
	}

	p.logEvent(ctx, entry, "Text extraction completed", map[string]interface{}{
		"characters": len(text),
	})
	p.metrics.RecordStage("extraction", string(class), time.Since(start).Seconds())

	logger.Info("Text extraction completed",
		"document_id", doc.ID,
		"class", class,
		"characters", len(text),
	)

	return Outcome{Status: models.StatusExtracted}
}

// RunVectorization chunks the extracted text, embeds every chunk, stores
// the vectors, and completes the entry. The external index mirror runs
// after the status flip and never fails the stage. The caller must have
// claimed the entry into the vectorizing state.
func (p *Pipeline) RunVectorization(ctx context.Context, entry *models.QueueEntry) Outcome {
	ctx, span := otel.Tracer("grant-platform-backend").Start(ctx, "pipeline.vectorize")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", entry.DocumentID))

	start := time.Now()
	class := entry.DocumentClass

	doc, _, err := p.docs.FindDocument(ctx, entry.DocumentID)
	if err != nil {
		return p.recordFailure(ctx, entry, "Vector generation failed", err, true)
	}
	if doc.ExtractedText == "" {
		return p.recordFailure(ctx, entry, "Vector generation failed",
			fmt.Errorf("document %s has no extracted text", doc.ID), true)
	}

	chunks := p.chunker.Chunk(doc.ExtractedText)
	if len(chunks) == 0 {
		return p.recordFailure(ctx, entry, "Vector generation failed",
			fmt.Errorf("document %s produced no chunks", doc.ID), true)
	}

	embeddings := make([]models.ChunkEmbedding, 0, len(chunks))
	for i, chunk := range chunks {
		vector, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			return p.recordFailure(ctx, entry, "Vector generation failed",
				fmt.Errorf("failed to embed chunk %d: %w", i, err), false)
		}
		embeddings = append(embeddings, models.ChunkEmbedding{Text: chunk, Vector: vector})
	}

	if err := p.sink.StoreVectors(ctx, class, doc.ID, embeddings); err != nil {
		return p.recordFailure(ctx, entry, "Vector generation failed", err, false)
	}

	if err := p.docs.MarkCompleted(ctx, class, doc.ID); err != nil {
		return p.recordFailure(ctx, entry, "Vector generation failed", err, false)
	}
	if err := p.queue.Update(ctx, entry.ID, models.StatusCompleted, entry.Attempts, ""); err != nil {
		return Outcome{Status: models.StatusVectorizing, Err: err}
	}

	p.sink.MirrorToIndex(ctx, class, doc, chunks)

	p.logEvent(ctx, entry, "Vector generation completed", map[string]interface{}{
		"chunks": len(chunks),
	})
	p.metrics.RecordStage("vectorization", string(class), time.Since(start).Seconds())
	p.metrics.RecordOutcome(string(class), models.StatusCompleted)

	logger.Info("Vector generation completed",
		"document_id", doc.ID,
		"class", class,
		"chunks", len(chunks),
	)

	return Outcome{Status: models.StatusCompleted}
}

// recordFailure applies the retry policy: fatal errors and exhausted
// budgets fail the entry and document for good, anything else returns both
// to pending for another attempt.
func (p *Pipeline) recordFailure(ctx context.Context, entry *models.QueueEntry, event string, cause error, fatal bool) Outcome {
	attempts := entry.Attempts + 1
	status := models.StatusPending
	if fatal || attempts >= p.maxAttempts {
		status = models.StatusFailed
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(cause)
		span.SetAttributes(
			attribute.String("queue.status", status),
			attribute.Int("queue.attempts", attempts),
		)
	}

	if err := p.queue.Update(ctx, entry.ID, status, attempts, cause.Error()); err != nil {
		logger.Error("Failed to record queue failure", "entry_id", entry.ID, "error", err)
	}
	if err := p.docs.SetStatus(ctx, entry.DocumentClass, entry.DocumentID, status, cause.Error()); err != nil {
		logger.Error("Failed to record document failure", "document_id", entry.DocumentID, "error", err)
	}

	p.logEvent(ctx, entry, event, map[string]interface{}{
		"error":    cause.Error(),
		"attempts": attempts,
		"fatal":    fatal,
		"status":   status,
	})
	p.metrics.RecordOutcome(string(entry.DocumentClass), status)

	logger.Warn(event,
		"document_id", entry.DocumentID,
		"attempts", attempts,
		"status", status,
		"error", cause,
	)

	return Outcome{Status: status, Err: cause}
}

func (p *Pipeline) logEvent(ctx context.Context, entry *models.QueueEntry, event string, details map[string]interface{}) {
	if p.events == nil {
		return
	}
	if err := p.events.Log(ctx, entry.DocumentID, entry.DocumentClass, event, details); err != nil {
		logger.Error("Failed to write audit event", "document_id", entry.DocumentID, "error", err)
	}
}
