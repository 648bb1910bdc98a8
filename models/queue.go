package models

import "time"

// QueueEntry is one unit of scheduled processing work for a document.
// Entries are never deleted; the collection doubles as an audit trail of
// processing attempts. Attempts only ever grow, and once an entry reaches
// failed or completed it stays there until an external actor enqueues a
// fresh entry for the same document.
type QueueEntry struct {
	ID            string        `bson:"_id" json:"id"`
	DocumentID    string        `bson:"document_id" json:"document_id"`
	DocumentClass DocumentClass `bson:"document_type" json:"document_type"`
	Status        string        `bson:"status" json:"status"`
	Attempts      int           `bson:"attempts" json:"attempts"`
	Error         string        `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updated_at"`
}

// Terminal reports whether the entry can make no further automatic progress.
func (e *QueueEntry) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}
