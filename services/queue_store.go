package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"grant-platform-backend/models"
)

// ErrEntryNotClaimable is returned when a conditional claim matches no
// entry, either because it does not exist or another worker moved it first.
var ErrEntryNotClaimable = errors.New("queue entry not claimable")

// QueueStore persists the document processing queue. Claims are
// conditional state transitions so two workers can never hold the same
// entry at once.
type QueueStore interface {
	Enqueue(ctx context.Context, documentID string, class models.DocumentClass) (*models.QueueEntry, error)
	Find(ctx context.Context, id string) (*models.QueueEntry, error)
	Claim(ctx context.Context, id, from, to string) (*models.QueueEntry, error)
	ClaimBatch(ctx context.Context, from, to string, limit int) ([]models.QueueEntry, error)
	Update(ctx context.Context, id, status string, attempts int, errMsg string) error
}

// MongoQueueStore implements QueueStore over the document_processing_queue
// collection.
type MongoQueueStore struct {
	queue *mongo.Collection
}

func NewMongoQueueStore(db *mongo.Database) *MongoQueueStore {
	return &MongoQueueStore{queue: db.Collection("document_processing_queue")}
}

// Enqueue inserts a fresh pending entry with a zeroed attempt counter.
func (s *MongoQueueStore) Enqueue(ctx context.Context, documentID string, class models.DocumentClass) (*models.QueueEntry, error) {
	now := time.Now()
	entry := &models.QueueEntry{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		DocumentClass: class,
		Status:        models.StatusPending,
		Attempts:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := s.queue.InsertOne(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue document: %w", err)
	}
	return entry, nil
}

func (s *MongoQueueStore) Find(ctx context.Context, id string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.queue.FindOne(ctx, bson.M{"_id": id}).Decode(&entry); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("queue entry %s not found", id)
		}
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	return &entry, nil
}

// Claim atomically moves one entry from one status to another. The filter
// includes the expected source status, so a concurrent claim loses cleanly
// with ErrEntryNotClaimable instead of double-processing.
func (s *MongoQueueStore) Claim(ctx context.Context, id, from, to string) (*models.QueueEntry, error) {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var entry models.QueueEntry
	err := s.queue.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotClaimable
		}
		return nil, fmt.Errorf("failed to claim queue entry: %w", err)
	}
	return &entry, nil
}

// ClaimBatch claims up to limit entries oldest-first, one conditional
// update at a time. Entries another worker grabs in between are skipped.
func (s *MongoQueueStore) ClaimBatch(ctx context.Context, from, to string, limit int) ([]models.QueueEntry, error) {
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.queue.Find(ctx, bson.M{"status": from}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	defer cursor.Close(ctx)

	var candidates []models.QueueEntry
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode queue entries: %w", err)
	}

	var claimed []models.QueueEntry
	for _, candidate := range candidates {
		entry, err := s.Claim(ctx, candidate.ID, from, to)
		if err != nil {
			if errors.Is(err, ErrEntryNotClaimable) {
				continue
			}
			return claimed, err
		}
		claimed = append(claimed, *entry)
	}
	return claimed, nil
}

func (s *MongoQueueStore) Update(ctx context.Context, id, status string, attempts int, errMsg string) error {
	update := bson.M{"$set": bson.M{
		"status":     status,
		"attempts":   attempts,
		"error":      errMsg,
		"updated_at": time.Now(),
	}}
	res, err := s.queue.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update queue entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("queue entry %s not found", id)
	}
	return nil
}
