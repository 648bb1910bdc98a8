package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	if err := createIndexes(client, cfg.DBName); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	ctx := context.Background()

	// Processing queue: batch pulls filter on status and order by age.
	queueCol := db.Collection("document_processing_queue")
	queueIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "document_id", Value: 1}}},
	}
	if _, err := queueCol.Indexes().CreateMany(ctx, queueIndexes); err != nil {
		return err
	}

	// Document collections: the worker surfaces filter on status.
	for _, name := range []string{"grant_application_documents", "grant_application_section_documents"} {
		col := db.Collection(name)
		indexes := []mongo.IndexModel{
			{Keys: bson.D{{Key: "vectorization_status", Value: 1}}},
		}
		if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
			return err
		}
	}

	// Vector collections: upserts are keyed (document_id, chunk_index).
	for _, name := range []string{"application_document_vectors", "section_document_vectors"} {
		col := db.Collection(name)
		indexes := []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		}
		if _, err := col.Indexes().CreateMany(ctx, indexes); err != nil {
			return err
		}
	}

	return nil
}
