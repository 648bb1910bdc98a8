package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"grant-platform-backend/internal/logger"
	"grant-platform-backend/internal/telemetry"
	"grant-platform-backend/internal/vectorindex"
	"grant-platform-backend/models"
)

// Embedder produces an embedding vector for a chunk of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexClient manages the external semantic index mirrored alongside the
// locally stored vectors.
type IndexClient interface {
	CreateStore(ctx context.Context, name string) (vectorindex.StoreHandle, error)
	UploadChunks(ctx context.Context, storeID, documentID string, chunks []string) error
}

// EventLog records processing audit events.
type EventLog interface {
	Log(ctx context.Context, documentID string, class models.DocumentClass, event string, details map[string]interface{}) error
}

// VectorSink persists chunk vectors and mirrors chunk text to the external
// index.
type VectorSink interface {
	StoreVectors(ctx context.Context, class models.DocumentClass, documentID string, embeddings []models.ChunkEmbedding) error
	MirrorToIndex(ctx context.Context, class models.DocumentClass, doc *models.Document, chunks []string)
}

// MongoVectorSink writes vectors into per-class Mongo collections. Rows are
// keyed by (document_id, chunk_index) so a rerun replaces rather than
// duplicates, and rows past the new chunk count are removed.
type MongoVectorSink struct {
	applicationVectors *mongo.Collection
	sectionVectors     *mongo.Collection
	grants             GrantStore
	index              IndexClient
	events             EventLog
	metrics            *telemetry.Metrics
}

func NewMongoVectorSink(db *mongo.Database, grants GrantStore, index IndexClient, events EventLog, metrics *telemetry.Metrics) *MongoVectorSink {
	return &MongoVectorSink{
		applicationVectors: db.Collection("application_document_vectors"),
		sectionVectors:     db.Collection("section_document_vectors"),
		grants:             grants,
		index:              index,
		events:             events,
		metrics:            metrics,
	}
}

func (s *MongoVectorSink) collection(class models.DocumentClass) *mongo.Collection {
	if class == models.ClassSection {
		return s.sectionVectors
	}
	return s.applicationVectors
}

// StoreVectors upserts all rows for a document in one bulk write, then
// deletes leftovers from a previous longer run. The bulk write is ordered,
// so a failure leaves no partial tail beyond the failing row.
func (s *MongoVectorSink) StoreVectors(ctx context.Context, class models.DocumentClass, documentID string, embeddings []models.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return fmt.Errorf("no embeddings to store for document %s", documentID)
	}

	now := time.Now()
	writes := make([]mongo.WriteModel, 0, len(embeddings))
	for i, emb := range embeddings {
		filter := bson.M{"document_id": documentID, "chunk_index": i}
		update := bson.M{
			"$set": bson.M{
				"chunk_text": emb.Text,
				"vector":     emb.Vector,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"created_at": now,
			},
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(filter).
			SetUpdate(update).
			SetUpsert(true))
	}

	coll := s.collection(class)
	if _, err := coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to store vectors: %w", err)
	}

	stale := bson.M{"document_id": documentID, "chunk_index": bson.M{"$gte": len(embeddings)}}
	if _, err := coll.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("failed to remove stale vectors: %w", err)
	}

	s.metrics.RecordVectors(string(class), int64(len(embeddings)))
	return nil
}

// MirrorToIndex pushes chunk text to the application's external vector
// store, creating or replacing the store when the saved handle is missing
// or expired. Mirroring is best effort: failures are logged and audited
// but never fail the pipeline.
func (s *MongoVectorSink) MirrorToIndex(ctx context.Context, class models.DocumentClass, doc *models.Document, chunks []string) {
	if s.index == nil {
		return
	}
	if doc.GrantApplicationID == "" {
		logger.Debug("Skipping index mirror for document without application", "document_id", doc.ID)
		return
	}

	if err := s.mirror(ctx, doc, chunks); err != nil {
		logger.Error("External index mirroring failed", "document_id", doc.ID, "error", err)
		s.metrics.RecordIndexBatch("failed")
		if s.events != nil {
			_ = s.events.Log(ctx, doc.ID, class, "External index mirroring failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}

	s.metrics.RecordIndexBatch("completed")
}

func (s *MongoVectorSink) mirror(ctx context.Context, doc *models.Document, chunks []string) error {
	app, err := s.grants.FindApplication(ctx, doc.GrantApplicationID)
	if err != nil {
		return err
	}

	storeID := app.VectorStoreID
	if !app.HasLiveVectorStore(time.Now()) {
		handle, err := s.index.CreateStore(ctx, fmt.Sprintf("grant_application_%s", app.ID))
		if err != nil {
			return fmt.Errorf("failed to create external vector store: %w", err)
		}

		// Persist the handle before uploading so a crash mid-upload
		// still leaves the store reachable next run.
		if err := s.grants.SaveVectorStore(ctx, app.ID, handle.ID, handle.ExpiresAt); err != nil {
			return err
		}
		storeID = handle.ID
	}

	return s.index.UploadChunks(ctx, storeID, doc.ID, chunks)
}
