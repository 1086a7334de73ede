package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caselens/timeline-back/internal/domain"
	"github.com/caselens/timeline-back/internal/queue"
	"github.com/caselens/timeline-back/internal/repository"
	"github.com/caselens/timeline-back/internal/state"
	"github.com/caselens/timeline-back/internal/textsource"
)

var ErrEmptyOwner = errors.New("owner_id is required")

// DocumentsService is the trigger and read surface over the pipeline.
// Register creates a pending document and enqueues exactly one run; reads
// never touch the pipeline.
type DocumentsService struct {
	repo     repository.DocumentsRepository
	texts    textsource.Store
	producer queue.Producer
}

func NewDocumentsService(
	repo repository.DocumentsRepository,
	texts textsource.Store,
	producer queue.Producer,
) *DocumentsService {
	return &DocumentsService{
		repo:     repo,
		texts:    texts,
		producer: producer,
	}
}

// Register stages the document's extracted text, creates the document in
// pending, and enqueues its run. If enqueueing fails the document stays
// pending and can be resubmitted.
func (s *DocumentsService) Register(
	ctx context.Context,
	ownerID, filename, extractedText string,
) (*domain.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrEmptyOwner
	}

	now := time.Now().UTC()
	document := &domain.Document{
		ID:        uuid.NewString(),
		OwnerID:   strings.TrimSpace(ownerID),
		Filename:  strings.TrimSpace(filename),
		Status:    domain.DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.texts.Put(ctx, document.ID, extractedText); err != nil {
		return nil, fmt.Errorf("stage extracted text: %w", err)
	}
	if err := s.repo.CreateDocument(ctx, document); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := s.enqueueRun(ctx, document.ID); err != nil {
		return nil, err
	}
	return document, nil
}

// Submit enqueues one run for an existing pending document. Duplicate
// triggers are rejected here when the status already shows it; the state
// machine's begin remains the authoritative gate either way.
func (s *DocumentsService) Submit(ctx context.Context, documentID string) (*domain.Document, error) {
	document, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	switch document.Status {
	case domain.DocumentStatusProcessing:
		return nil, fmt.Errorf("%w: document %s", state.ErrAlreadyRunning, documentID)
	case domain.DocumentStatusCompleted, domain.DocumentStatusFailed:
		return nil, fmt.Errorf(
			"%w: document %s is %s",
			state.ErrInvalidTransition, documentID, document.Status,
		)
	}

	if err := s.enqueueRun(ctx, documentID); err != nil {
		return nil, err
	}
	return document, nil
}

func (s *DocumentsService) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.repo.GetDocument(ctx, documentID)
}

func (s *DocumentsService) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.repo.ListDocuments(ctx, ownerID)
}

// GetTimeline returns the timeline together with the document so callers
// can distinguish "still processing" from "never existed".
func (s *DocumentsService) GetTimeline(ctx context.Context, documentID string) (*domain.Document, *domain.Timeline, error) {
	document, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if document.Status != domain.DocumentStatusCompleted {
		return document, nil, nil
	}
	timeline, err := s.repo.GetTimeline(ctx, documentID)
	if err != nil {
		return document, nil, err
	}
	return document, timeline, nil
}

func (s *DocumentsService) enqueueRun(ctx context.Context, documentID string) error {
	message := domain.SubmitMessage{
		DocumentID:  documentID,
		Attempt:     0,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}
