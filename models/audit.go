package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProcessingEvent is an immutable audit record of one pipeline transition.
type ProcessingEvent struct {
	ID            string                 `bson:"_id"`
	DocumentID    string                 `bson:"document_id"`
	DocumentClass DocumentClass          `bson:"document_type"`
	Event         string                 `bson:"event"`
	Details       map[string]interface{} `bson:"details,omitempty"`
	PreviousHash  string                 `bson:"previous_hash"`
	CurrentHash   string                 `bson:"current_hash"`
	CreatedAt     time.Time              `bson:"created_at"`
}

// ComputeHash computes the chain hash of this event.
func (e *ProcessingEvent) ComputeHash() string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		e.CreatedAt.Format(time.RFC3339Nano),
		e.DocumentID,
		e.DocumentClass,
		e.Event,
		e.PreviousHash,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ProcessingEventLog appends audit events for document processing. Events
// are hash-chained per document and never updated in place.
type ProcessingEventLog struct {
	col        *mongo.Collection
	lastHashMu sync.Mutex
	lastHashes map[string]string // documentID -> last hash
}

// NewProcessingEventLog creates the event log over the given database.
func NewProcessingEventLog(db *mongo.Database) *ProcessingEventLog {
	col := db.Collection("document_processing_events")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "event", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	}
	col.Indexes().CreateMany(context.Background(), indexes)

	return &ProcessingEventLog{
		col:        col,
		lastHashes: make(map[string]string),
	}
}

// Log appends one event. Failures here must never fail document processing,
// so callers treat the returned error as log-and-continue.
func (l *ProcessingEventLog) Log(ctx context.Context, documentID string, class DocumentClass, event string, details map[string]interface{}) error {
	l.lastHashMu.Lock()
	defer l.lastHashMu.Unlock()

	ev := &ProcessingEvent{
		ID:            uuid.NewString(),
		DocumentID:    documentID,
		DocumentClass: class,
		Event:         event,
		Details:       details,
		PreviousHash:  l.lastHashes[documentID],
		CreatedAt:     time.Now().UTC(),
	}
	ev.CurrentHash = ev.ComputeHash()

	if _, err := l.col.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("failed to append processing event: %w", err)
	}

	l.lastHashes[documentID] = ev.CurrentHash
	return nil
}

// Recent returns up to limit events for a document, newest first.
func (l *ProcessingEventLog) Recent(ctx context.Context, documentID string, limit int64) ([]ProcessingEvent, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := l.col.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []ProcessingEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}
