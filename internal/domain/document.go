package domain

import "time"

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status is final. Terminal statuses are never
// transitioned out of.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is the canonical unit tracked through the extraction pipeline.
// A timeline exists for a document iff its status is completed.
type Document struct {
	ID           string
	OwnerID      string
	Filename     string
	Status       DocumentStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is a bounded, ordered slice of source text submitted independently
// for extraction. Start and End are character offsets into the source text;
// Index is the sole ordering key for tie-breaks downstream.
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Event is a single structured timeline entry extracted from a chunk.
// Date is kept as the raw string the extractor produced; parsing happens at
// merge time so unparseable dates are preserved instead of dropped.
type Event struct {
	Date            string   `json:"date"`
	Description     string   `json:"description"`
	InvolvedParties []string `json:"involved_parties"`
	Significance    string   `json:"significance"`
	ChunkIndex      int      `json:"chunk_index"`
}

// Timeline is the final ordered sequence of events for one document.
// It is written atomically as a whole, never partially.
type Timeline struct {
	DocumentID string
	Events     []Event
	CreatedAt  time.Time
}

// SubmitMessage is the transport format sent to queue backends to trigger
// one orchestrator run for a document.
type SubmitMessage struct {
	DocumentID  string    `json:"document_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
