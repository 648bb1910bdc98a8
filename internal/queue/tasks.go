package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"grant-platform-backend/internal/logger"
	"grant-platform-backend/models"
	"grant-platform-backend/services"
)

const (
	TaskDocumentExtract   = "document:extract"
	TaskDocumentVectorize = "document:vectorize"
)

// DocumentTaskPayload identifies one processing queue entry. Retry policy
// lives in the queue entry itself, so tasks run with MaxRetry(0): a failed
// stage puts the entry back to pending and a sweep or redispatch picks it
// up again.
type DocumentTaskPayload struct {
	EntryID       string               `json:"entry_id"`
	DocumentID    string               `json:"document_id"`
	DocumentClass models.DocumentClass `json:"document_type"`
}

func NewDocumentExtractTask(entry *models.QueueEntry) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentTaskPayload{
		EntryID:       entry.ID,
		DocumentID:    entry.DocumentID,
		DocumentClass: entry.DocumentClass,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentExtract,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewDocumentVectorizeTask(entry *models.QueueEntry) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentTaskPayload{
		EntryID:       entry.ID,
		DocumentID:    entry.DocumentID,
		DocumentClass: entry.DocumentClass,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskDocumentVectorize,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TaskProcessor hosts the asynq handlers for both pipeline stages.
type TaskProcessor struct {
	pipeline   *services.Pipeline
	queue      services.QueueStore
	docs       services.DocumentStore
	dispatcher *Dispatcher
}

func NewTaskProcessor(pipeline *services.Pipeline, queue services.QueueStore, docs services.DocumentStore, dispatcher *Dispatcher) *TaskProcessor {
	return &TaskProcessor{
		pipeline:   pipeline,
		queue:      queue,
		docs:       docs,
		dispatcher: dispatcher,
	}
}

// HandleExtract claims the entry and runs extraction, then dispatches the
// vectorization task on success. An entry already moved by another worker
// is dropped without error.
func (p *TaskProcessor) HandleExtract(ctx context.Context, t *asynq.Task) error {
	var payload DocumentTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	entry, err := p.queue.Claim(ctx, payload.EntryID, models.StatusPending, models.StatusExtracting)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotClaimable) {
			logger.Debug("Extraction task skipped, entry not pending", "entry_id", payload.EntryID)
			return nil
		}
		return err
	}
	if err := p.docs.SetStatus(ctx, entry.DocumentClass, entry.DocumentID, models.StatusExtracting, ""); err != nil {
		logger.Error("Failed to mark document extracting", "document_id", entry.DocumentID, "error", err)
	}

	outcome := p.pipeline.RunExtraction(ctx, entry)
	if outcome.Status != models.StatusExtracted {
		// Retry state is already recorded on the queue entry.
		return nil
	}

	if err := p.dispatcher.DispatchVectorization(ctx, entry); err != nil {
		logger.Error("Failed to dispatch vectorization task", "entry_id", entry.ID, "error", err)
	}
	return nil
}

// HandleVectorize claims the entry and runs vectorization.
func (p *TaskProcessor) HandleVectorize(ctx context.Context, t *asynq.Task) error {
	var payload DocumentTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	entry, err := p.queue.Claim(ctx, payload.EntryID, models.StatusExtracted, models.StatusVectorizing)
	if err != nil {
		if errors.Is(err, services.ErrEntryNotClaimable) {
			logger.Debug("Vectorization task skipped, entry not extracted", "entry_id", payload.EntryID)
			return nil
		}
		return err
	}
	if err := p.docs.SetStatus(ctx, entry.DocumentClass, entry.DocumentID, models.StatusVectorizing, ""); err != nil {
		logger.Error("Failed to mark document vectorizing", "document_id", entry.DocumentID, "error", err)
	}

	p.pipeline.RunVectorization(ctx, entry)
	return nil
}

// Dispatcher enqueues pipeline tasks onto the asynq transport. It
// implements services.TaskDispatcher.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) DispatchExtraction(ctx context.Context, entry *models.QueueEntry) error {
	task, err := NewDocumentExtractTask(entry)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue extraction task: %w", err)
	}
	return nil
}

func (d *Dispatcher) DispatchVectorization(ctx context.Context, entry *models.QueueEntry) error {
	task, err := NewDocumentVectorizeTask(entry)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue vectorization task: %w", err)
	}
	return nil
}
