package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
)

var (
	ErrNotFound = errors.New("resource not found")

	// ErrStatusConflict means a conditional status write found the document
	// in a different status than expected. The state machine translates it
	// into its typed rejections.
	ErrStatusConflict = errors.New("document status conflict")
)

// DocumentsRepository abstracts document and timeline persistence.
//
// TransitionStatus is a check-and-set: it moves the document from exactly
// the expected status to the new one or fails with ErrStatusConflict.
// CommitTimeline writes the timeline and the completed status atomically:
// both land or neither does.
type DocumentsRepository interface {
	CreateDocument(ctx context.Context, document *domain.Document) error
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error)
	TransitionStatus(ctx context.Context, documentID string, from, to domain.DocumentStatus, errorMessage string) error
	CommitTimeline(ctx context.Context, documentID string, timeline domain.Timeline) error
	GetTimeline(ctx context.Context, documentID string) (*domain.Timeline, error)
}

// MemoryDocumentsRepository stores documents and timelines in memory for
// local development and tests. All conditional writes happen under one lock,
// which gives the same CAS semantics the postgres implementation gets from
// conditional UPDATEs.
type MemoryDocumentsRepository struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document
	timelines map[string]*domain.Timeline
}

func NewMemoryDocumentsRepository() *MemoryDocumentsRepository {
	return &MemoryDocumentsRepository{
		documents: make(map[string]*domain.Document),
		timelines: make(map[string]*domain.Timeline),
	}
}

func (r *MemoryDocumentsRepository) CreateDocument(_ context.Context, document *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[document.ID]; exists {
		return errors.New("document already exists")
	}
	copied := *document
	r.documents[document.ID] = &copied
	return nil
}

func (r *MemoryDocumentsRepository) GetDocument(_ context.Context, documentID string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	document, exists := r.documents[documentID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *document
	return &copied, nil
}

func (r *MemoryDocumentsRepository) ListDocuments(_ context.Context, ownerID string) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Document, 0)
	for _, document := range r.documents {
		if ownerID == "" || document.OwnerID == ownerID {
			result = append(result, *document)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *MemoryDocumentsRepository) TransitionStatus(
	_ context.Context,
	documentID string,
	from, to domain.DocumentStatus,
	errorMessage string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, exists := r.documents[documentID]
	if !exists {
		return ErrNotFound
	}
	if document.Status != from {
		return ErrStatusConflict
	}
	document.Status = to
	document.ErrorMessage = errorMessage
	document.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryDocumentsRepository) CommitTimeline(
	_ context.Context,
	documentID string,
	timeline domain.Timeline,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, exists := r.documents[documentID]
	if !exists {
		return ErrNotFound
	}
	if document.Status != domain.DocumentStatusProcessing {
		return ErrStatusConflict
	}

	copied := timeline
	copied.DocumentID = documentID
	copied.Events = append([]domain.Event(nil), timeline.Events...)
	r.timelines[documentID] = &copied

	document.Status = domain.DocumentStatusCompleted
	document.ErrorMessage = ""
	document.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryDocumentsRepository) GetTimeline(_ context.Context, documentID string) (*domain.Timeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	timeline, exists := r.timelines[documentID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *timeline
	copied.Events = append([]domain.Event(nil), timeline.Events...)
	return &copied, nil
}
