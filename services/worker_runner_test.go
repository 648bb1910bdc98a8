package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"grant-platform-backend/models"
)

type runnerFixture struct {
	runner *WorkerRunner
	*pipelineFixture
}

func newRunnerFixture(t *testing.T, docs ...*models.Document) *runnerFixture {
	t.Helper()
	pf := newPipelineFixture(t, docs...)
	cfg := testPipelineConfig()
	cfg.QueueBatchSize = 5
	return &runnerFixture{
		runner:          NewWorkerRunner(cfg, pf.pipeline, pf.queue, pf.docs),
		pipelineFixture: pf,
	}
}

func TestProcessExtractionBatchEmpty(t *testing.T) {
	f := newRunnerFixture(t)
	n, err := f.runner.ProcessExtractionBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessExtractionBatch failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 processed on empty queue, got %d", n)
	}
}

func TestProcessExtractionBatchClaimsUpToLimit(t *testing.T) {
	var docs []*models.Document
	for i := 0; i < 7; i++ {
		docs = append(docs, &models.Document{
			ID:                  fmt.Sprintf("doc-%d", i),
			FileType:            "txt",
			FilePath:            fmt.Sprintf("app/doc-%d.txt", i),
			VectorizationStatus: models.StatusPending,
		})
	}
	f := newRunnerFixture(t, docs...)
	for i := 0; i < 7; i++ {
		path := fmt.Sprintf("app/doc-%d.txt", i)
		if err := f.blobs.Put("grant-attachments", path, []byte("text")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		f.enqueue(t, fmt.Sprintf("doc-%d", i), models.StatusPending, 0)
	}

	n, err := f.runner.ProcessExtractionBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessExtractionBatch failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected batch of 5, got %d", n)
	}

	extracted := 0
	pending := 0
	for i := 0; i < 7; i++ {
		switch f.docs.status(fmt.Sprintf("doc-%d", i)) {
		case models.StatusExtracted:
			extracted++
		case models.StatusPending:
			pending++
		}
	}
	if extracted != 5 || pending != 2 {
		t.Errorf("Expected 5 extracted and 2 still pending, got %d/%d", extracted, pending)
	}
}

func TestProcessVectorizationBatch(t *testing.T) {
	f := newRunnerFixture(t, &models.Document{
		ID:                  "doc-1",
		ExtractedText:       "Extracted narrative text.",
		VectorizationStatus: models.StatusExtracted,
	})
	f.enqueue(t, "doc-1", models.StatusExtracted, 0)

	n, err := f.runner.ProcessVectorizationBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessVectorizationBatch failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 processed, got %d", n)
	}
	if f.docs.status("doc-1") != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", f.docs.status("doc-1"))
	}
	if len(f.sink.stored["doc-1"]) == 0 {
		t.Error("Expected vectors stored")
	}
}

func TestProcessEntryEndToEnd(t *testing.T) {
	f := newRunnerFixture(t, &models.Document{
		ID:                  "doc-1",
		FileType:            "txt",
		FilePath:            "app/doc-1.txt",
		VectorizationStatus: models.StatusPending,
	})
	if err := f.blobs.Put("grant-attachments", "app/doc-1.txt", []byte("Full pipeline text.")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	entry := f.enqueue(t, "doc-1", models.StatusPending, 0)

	outcome, err := f.runner.ProcessEntry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("ProcessEntry failed: %v", err)
	}
	if outcome.Status != models.StatusCompleted {
		t.Errorf("Expected completed, got %s", outcome.Status)
	}
	if f.docs.status("doc-1") != models.StatusCompleted {
		t.Error("Expected document completed")
	}
}

func TestProcessEntrySkipsNonPending(t *testing.T) {
	f := newRunnerFixture(t, &models.Document{
		ID:                  "doc-1",
		VectorizationStatus: models.StatusCompleted,
	})
	entry := f.enqueue(t, "doc-1", models.StatusCompleted, 0)

	outcome, err := f.runner.ProcessEntry(context.Background(), entry.ID)
	if !errors.Is(err, ErrEntryNotClaimable) {
		t.Fatalf("Expected ErrEntryNotClaimable, got %v", err)
	}
	if outcome.Status != models.StatusCompleted {
		t.Errorf("Expected reported status completed, got %s", outcome.Status)
	}
	if len(f.sink.stored) != 0 {
		t.Error("Expected no processing for a terminal entry")
	}
}
