package vectorindex

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"grant-platform-backend/internal/config"
	"grant-platform-backend/internal/logger"
)

// StoreHandle identifies a remote vector store and its local expiry estimate.
type StoreHandle struct {
	ID        string
	ExpiresAt time.Time
}

// Client manages OpenAI vector stores used as the external semantic index.
// Uploads are chunk files grouped into batches, each batch polled until the
// remote ingestion settles.
type Client struct {
	api          *openai.Client
	ttlDays      int
	batchSize    int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		api:          openai.NewClient(cfg.OpenAIAPIKey),
		ttlDays:      cfg.IndexTTLDays,
		batchSize:    cfg.IndexBatchSize,
		pollInterval: time.Duration(cfg.IndexPollInterval) * time.Second,
		pollTimeout:  time.Duration(cfg.IndexPollTimeout) * time.Second,
	}
}

// CreateStore provisions a vector store that expires after the configured
// number of idle days. The returned expiry is a local estimate; the remote
// side anchors expiry on last activity.
func (c *Client) CreateStore(ctx context.Context, name string) (StoreHandle, error) {
	store, err := c.api.CreateVectorStore(ctx, openai.VectorStoreRequest{
		Name: name,
		ExpiresAfter: &openai.VectorStoreExpires{
			Anchor: "last_active_at",
			Days:   c.ttlDays,
		},
	})
	if err != nil {
		return StoreHandle{}, fmt.Errorf("failed to create vector store: %w", err)
	}

	return StoreHandle{
		ID:        store.ID,
		ExpiresAt: time.Now().AddDate(0, 0, c.ttlDays),
	}, nil
}

// UploadChunks pushes text chunks into the store as individual files and
// attaches them in batches, waiting for each batch to finish ingesting.
func (c *Client) UploadChunks(ctx context.Context, storeID, documentID string, chunks []string) error {
	fileIDs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		file, err := c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    fmt.Sprintf("%s_chunk_%d.txt", documentID, i),
			Bytes:   []byte(chunk),
			Purpose: openai.PurposeAssistants,
		})
		if err != nil {
			return fmt.Errorf("failed to upload chunk %d: %w", i, err)
		}
		fileIDs = append(fileIDs, file.ID)
	}

	for start := 0; start < len(fileIDs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(fileIDs) {
			end = len(fileIDs)
		}

		batch, err := c.api.CreateVectorStoreFileBatch(ctx, storeID, openai.VectorStoreFileBatchRequest{
			FileIDs: fileIDs[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to create file batch: %w", err)
		}

		if err := c.waitForBatch(ctx, storeID, batch.ID); err != nil {
			return err
		}

		logger.Debug("Vector store batch ingested", "store_id", storeID, "files", end-start)
	}

	return nil
}

func (c *Client) waitForBatch(ctx context.Context, storeID, batchID string) error {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		batch, err := c.api.RetrieveVectorStoreFileBatch(ctx, storeID, batchID)
		if err != nil {
			return fmt.Errorf("failed to poll file batch: %w", err)
		}

		switch batch.Status {
		case "completed":
			return nil
		case "failed", "cancelled":
			return fmt.Errorf("file batch %s ended with status %s", batchID, batch.Status)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("file batch %s did not settle within %s", batchID, c.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
