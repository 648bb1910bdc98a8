package models

import "time"

// DocumentClass selects which document table/collection an entry belongs to.
type DocumentClass string

const (
	ClassApplication DocumentClass = "application"
	ClassSection     DocumentClass = "section"
)

// Vectorization status constants shared by documents and queue entries.
// Statuses only advance forward, except for the retry path
// (extracting/vectorizing -> pending) and terminal failure.
const (
	StatusPending     = "pending"
	StatusExtracting  = "extracting"
	StatusExtracted   = "extracted"
	StatusVectorizing = "vectorizing"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// Document represents one uploaded or fetched file belonging either to a
// grant application or to a section within one.
type Document struct {
	ID                  string     `bson:"_id" json:"id"`
	GrantApplicationID  string     `bson:"grant_application_id,omitempty" json:"grant_application_id,omitempty"`
	SectionID           string     `bson:"grant_application_section_id,omitempty" json:"grant_application_section_id,omitempty"`
	FileName            string     `bson:"file_name" json:"file_name"`
	FileType            string     `bson:"file_type" json:"file_type"`
	FilePath            string     `bson:"file_path" json:"file_path"`
	ExtractedText       string     `bson:"extracted_text,omitempty" json:"-"`
	VectorizationStatus string     `bson:"vectorization_status" json:"vectorization_status"`
	VectorizationError  string     `bson:"vectorization_error,omitempty" json:"vectorization_error,omitempty"`
	LastVectorizedAt    *time.Time `bson:"last_vectorized_at,omitempty" json:"last_vectorized_at,omitempty"`
	CreatedAt           time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `bson:"updated_at" json:"updated_at"`
}

// Parent returns the id of the owning entity for the document's class.
func (d *Document) Parent(class DocumentClass) string {
	if class == ClassApplication {
		return d.GrantApplicationID
	}
	return d.SectionID
}

// GrantApplication carries the fields of a grant application the pipeline
// touches: the opportunity reference for the requirement importer and the
// external vector store handle for index mirroring.
type GrantApplication struct {
	ID                   string     `bson:"_id" json:"id"`
	Title                string     `bson:"title" json:"title"`
	GrantOpportunityID   string     `bson:"grant_opportunity_id,omitempty" json:"grant_opportunity_id,omitempty"`
	VectorStoreID        string     `bson:"vector_store_id,omitempty" json:"vector_store_id,omitempty"`
	VectorStoreExpiresAt *time.Time `bson:"vector_store_expires_at,omitempty" json:"vector_store_expires_at,omitempty"`
}

// HasLiveVectorStore reports whether the application holds a usable
// external index handle at the given instant.
func (a *GrantApplication) HasLiveVectorStore(now time.Time) bool {
	return a.VectorStoreID != "" && a.VectorStoreExpiresAt != nil && a.VectorStoreExpiresAt.After(now)
}

// GrantOpportunity is the funding opportunity an application targets.
type GrantOpportunity struct {
	ID      string `bson:"_id" json:"id"`
	URL     string `bson:"url,omitempty" json:"url,omitempty"`
	GrantID string `bson:"grant_id,omitempty" json:"grant_id,omitempty"`
}

// Grant is the parent grant program of an opportunity.
type Grant struct {
	ID             string `bson:"_id" json:"id"`
	URL            string `bson:"url,omitempty" json:"url,omitempty"`
	OrganizationID string `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
}

// Requirement points at an external requirement document by URL.
type Requirement struct {
	ID     string `bson:"_id" json:"id"`
	URL    string `bson:"url" json:"url"`
	Active bool   `bson:"active" json:"active"`
}
