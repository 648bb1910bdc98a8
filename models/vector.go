package models

import "time"

// ChunkEmbedding pairs a text chunk with its embedding vector. Chunk order
// matters: concatenating chunk texts with the overlap stripped reconstructs
// the extracted document text.
type ChunkEmbedding struct {
	Text   string
	Vector []float32
}

// ChunkVector is the durable per-chunk row written to the class vector
// collection. Rows are keyed (document_id, chunk_index) so a retried pass
// upserts over its own previous writes instead of duplicating them.
type ChunkVector struct {
	DocumentID string    `bson:"document_id" json:"document_id"`
	ChunkIndex int       `bson:"chunk_index" json:"chunk_index"`
	ChunkText  string    `bson:"chunk_text" json:"chunk_text"`
	Vector     []float32 `bson:"vector" json:"vector"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}
