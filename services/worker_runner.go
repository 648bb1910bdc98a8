package services

import (
	"context"
	"sync"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
	"grant-platform-backend/models"
)

// WorkerRunner drains the processing queue in small concurrent batches.
// Each sweep claims ready entries up front, so overlapping sweeps and
// multiple worker instances never touch the same entry.
type WorkerRunner struct {
	pipeline  *Pipeline
	queue     QueueStore
	docs      DocumentStore
	batchSize int
}

func NewWorkerRunner(cfg *config.Config, pipeline *Pipeline, queue QueueStore, docs DocumentStore) *WorkerRunner {
	return &WorkerRunner{
		pipeline:  pipeline,
		queue:     queue,
		docs:      docs,
		batchSize: cfg.QueueBatchSize,
	}
}

// ProcessExtractionBatch claims up to the batch size of pending entries
// and extracts them concurrently. It returns how many entries it claimed;
// zero means nothing was ready.
func (r *WorkerRunner) ProcessExtractionBatch(ctx context.Context) (int, error) {
	entries, err := r.queue.ClaimBatch(ctx, models.StatusPending, models.StatusExtracting, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	r.runConcurrently(ctx, entries, models.StatusExtracting, r.pipeline.RunExtraction)
	return len(entries), nil
}

// ProcessVectorizationBatch claims up to the batch size of extracted
// entries and vectorizes them concurrently.
func (r *WorkerRunner) ProcessVectorizationBatch(ctx context.Context) (int, error) {
	entries, err := r.queue.ClaimBatch(ctx, models.StatusExtracted, models.StatusVectorizing, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	r.runConcurrently(ctx, entries, models.StatusVectorizing, r.pipeline.RunVectorization)
	return len(entries), nil
}

func (r *WorkerRunner) runConcurrently(ctx context.Context, entries []models.QueueEntry, claimedStatus string, stage func(context.Context, *models.QueueEntry) Outcome) {
	var wg sync.WaitGroup
	for i := range entries {
		entry := entries[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := r.docs.SetStatus(ctx, entry.DocumentClass, entry.DocumentID, claimedStatus, ""); err != nil {
				logger.Error("Failed to mark document in progress",
					"document_id", entry.DocumentID, "error", err)
			}

			outcome := stage(ctx, &entry)
			if outcome.Err != nil {
				logger.Warn("Queue entry stage ended in failure",
					"entry_id", entry.ID,
					"status", outcome.Status,
					"error", outcome.Err,
				)
			}
		}()
	}
	wg.Wait()
}

// ProcessEntry runs a single entry through both stages synchronously. The
// entry must currently be pending; anything else is reported back without
// touching it, with ErrEntryNotClaimable.
func (r *WorkerRunner) ProcessEntry(ctx context.Context, id string) (Outcome, error) {
	entry, err := r.queue.Find(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if entry.Status != models.StatusPending {
		return Outcome{Status: entry.Status}, ErrEntryNotClaimable
	}

	claimed, err := r.queue.Claim(ctx, entry.ID, models.StatusPending, models.StatusExtracting)
	if err != nil {
		return Outcome{Status: entry.Status}, err
	}
	if err := r.docs.SetStatus(ctx, claimed.DocumentClass, claimed.DocumentID, models.StatusExtracting, ""); err != nil {
		logger.Error("Failed to mark document extracting", "document_id", claimed.DocumentID, "error", err)
	}

	outcome := r.pipeline.RunExtraction(ctx, claimed)
	if outcome.Status != models.StatusExtracted {
		return outcome, nil
	}

	claimed, err = r.queue.Claim(ctx, entry.ID, models.StatusExtracted, models.StatusVectorizing)
	if err != nil {
		return outcome, err
	}
	if err := r.docs.SetStatus(ctx, claimed.DocumentClass, claimed.DocumentID, models.StatusVectorizing, ""); err != nil {
		logger.Error("Failed to mark document vectorizing", "document_id", claimed.DocumentID, "error", err)
	}

	return r.pipeline.RunVectorization(ctx, claimed), nil
}
