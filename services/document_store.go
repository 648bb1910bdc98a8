package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"grant-platform-backend/models"
)

// ErrDocumentNotFound is returned when no document matches the given ID in
// either document collection.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore persists documents and their processing state. Application
// and section documents live in separate collections keyed by
// models.DocumentClass.
type DocumentStore interface {
	FindDocument(ctx context.Context, id string) (*models.Document, models.DocumentClass, error)
	InsertDocument(ctx context.Context, class models.DocumentClass, doc *models.Document) error
	SetExtracted(ctx context.Context, class models.DocumentClass, id, text string) error
	SetStatus(ctx context.Context, class models.DocumentClass, id, status, errMsg string) error
	MarkCompleted(ctx context.Context, class models.DocumentClass, id string) error
}

// GrantStore reads the grant-side records a document hangs off of and
// persists external index handles on applications.
type GrantStore interface {
	FindApplication(ctx context.Context, id string) (*models.GrantApplication, error)
	FindOpportunity(ctx context.Context, id string) (*models.GrantOpportunity, error)
	FindGrant(ctx context.Context, id string) (*models.Grant, error)
	FindRequirements(ctx context.Context, grantID string) ([]models.Requirement, error)
	FindOrgRequirements(ctx context.Context, orgID string) ([]models.Requirement, error)
	SaveVectorStore(ctx context.Context, appID, storeID string, expiresAt time.Time) error
}

// MongoDocumentStore implements DocumentStore over MongoDB.
type MongoDocumentStore struct {
	applicationDocs *mongo.Collection
	sectionDocs     *mongo.Collection
}

func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{
		applicationDocs: db.Collection("grant_application_documents"),
		sectionDocs:     db.Collection("grant_application_section_documents"),
	}
}

func (s *MongoDocumentStore) collection(class models.DocumentClass) *mongo.Collection {
	if class == models.ClassSection {
		return s.sectionDocs
	}
	return s.applicationDocs
}

// FindDocument looks the ID up in the application collection first, then
// the section collection, and reports which one matched.
func (s *MongoDocumentStore) FindDocument(ctx context.Context, id string) (*models.Document, models.DocumentClass, error) {
	var doc models.Document

	err := s.applicationDocs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == nil {
		return &doc, models.ClassApplication, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", fmt.Errorf("failed to query application documents: %w", err)
	}

	err = s.sectionDocs.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == nil {
		return &doc, models.ClassSection, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, "", fmt.Errorf("failed to query section documents: %w", err)
	}

	return nil, "", ErrDocumentNotFound
}

func (s *MongoDocumentStore) InsertDocument(ctx context.Context, class models.DocumentClass, doc *models.Document) error {
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.collection(class).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (s *MongoDocumentStore) SetExtracted(ctx context.Context, class models.DocumentClass, id, text string) error {
	update := bson.M{"$set": bson.M{
		"extracted_text":       text,
		"vectorization_status": models.StatusExtracted,
		"vectorization_error":  "",
		"updated_at":           time.Now(),
	}}
	return s.updateOne(ctx, class, id, update)
}

func (s *MongoDocumentStore) SetStatus(ctx context.Context, class models.DocumentClass, id, status, errMsg string) error {
	update := bson.M{"$set": bson.M{
		"vectorization_status": status,
		"vectorization_error":  errMsg,
		"updated_at":           time.Now(),
	}}
	return s.updateOne(ctx, class, id, update)
}

func (s *MongoDocumentStore) MarkCompleted(ctx context.Context, class models.DocumentClass, id string) error {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"vectorization_status": models.StatusCompleted,
		"vectorization_error":  "",
		"last_vectorized_at":   now,
		"updated_at":           now,
	}}
	return s.updateOne(ctx, class, id, update)
}

func (s *MongoDocumentStore) updateOne(ctx context.Context, class models.DocumentClass, id string, update bson.M) error {
	res, err := s.collection(class).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// MongoGrantStore implements GrantStore over MongoDB.
type MongoGrantStore struct {
	applications    *mongo.Collection
	opportunities   *mongo.Collection
	grants          *mongo.Collection
	requirements    *mongo.Collection
	orgRequirements *mongo.Collection
}

func NewMongoGrantStore(db *mongo.Database) *MongoGrantStore {
	return &MongoGrantStore{
		applications:    db.Collection("grant_applications"),
		opportunities:   db.Collection("grant_opportunities"),
		grants:          db.Collection("grants"),
		requirements:    db.Collection("grant_requirements"),
		orgRequirements: db.Collection("organization_grant_requirements"),
	}
}

func (s *MongoGrantStore) FindApplication(ctx context.Context, id string) (*models.GrantApplication, error) {
	var app models.GrantApplication
	if err := s.applications.FindOne(ctx, bson.M{"_id": id}).Decode(&app); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("grant application %s not found", id)
		}
		return nil, fmt.Errorf("failed to query grant applications: %w", err)
	}
	return &app, nil
}

func (s *MongoGrantStore) FindOpportunity(ctx context.Context, id string) (*models.GrantOpportunity, error) {
	var opp models.GrantOpportunity
	if err := s.opportunities.FindOne(ctx, bson.M{"_id": id}).Decode(&opp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("grant opportunity %s not found", id)
		}
		return nil, fmt.Errorf("failed to query grant opportunities: %w", err)
	}
	return &opp, nil
}

func (s *MongoGrantStore) FindGrant(ctx context.Context, id string) (*models.Grant, error) {
	var grant models.Grant
	if err := s.grants.FindOne(ctx, bson.M{"_id": id}).Decode(&grant); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("grant %s not found", id)
		}
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	return &grant, nil
}

func (s *MongoGrantStore) FindRequirements(ctx context.Context, grantID string) ([]models.Requirement, error) {
	return s.findRequirements(ctx, s.requirements, bson.M{"grant_id": grantID})
}

func (s *MongoGrantStore) FindOrgRequirements(ctx context.Context, orgID string) ([]models.Requirement, error) {
	return s.findRequirements(ctx, s.orgRequirements, bson.M{"organization_id": orgID})
}

func (s *MongoGrantStore) findRequirements(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]models.Requirement, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query requirements: %w", err)
	}
	defer cursor.Close(ctx)

	var reqs []models.Requirement
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("failed to decode requirements: %w", err)
	}
	return reqs, nil
}

func (s *MongoGrantStore) SaveVectorStore(ctx context.Context, appID, storeID string, expiresAt time.Time) error {
	update := bson.M{"$set": bson.M{
		"vector_store_id":         storeID,
		"vector_store_expires_at": expiresAt,
		"updated_at":              time.Now(),
	}}
	res, err := s.applications.UpdateOne(ctx, bson.M{"_id": appID}, update)
	if err != nil {
		return fmt.Errorf("failed to save vector store handle: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("grant application %s not found", appID)
	}
	return nil
}
