package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/caselens/timeline-back/internal/domain"
	"github.com/caselens/timeline-back/internal/repository"
)

var (
	// ErrInvalidTransition rejects any attempt to move a document out of a
	// status that does not allow the requested operation, including every
	// attempt to leave a terminal status. Rejections are loud so callers can
	// detect double-completion bugs.
	ErrInvalidTransition = errors.New("invalid document status transition")

	// ErrAlreadyRunning rejects begin while another run holds the
	// processing slot for the same document.
	ErrAlreadyRunning = errors.New("a run is already processing this document")
)

const maxErrorMessageChars = 500

// Machine is the single authority for mutating a document's status. All
// transitions go through conditional repository writes, so concurrent
// triggers for the same document cannot both enter processing.
type Machine struct {
	repo repository.DocumentsRepository
}

func NewMachine(repo repository.DocumentsRepository) *Machine {
	return &Machine{repo: repo}
}

// Begin moves pending → processing. It is the single entry gate preventing
// duplicate concurrent runs: the underlying check-and-set admits exactly one
// caller, everyone else gets ErrAlreadyRunning or ErrInvalidTransition.
func (m *Machine) Begin(ctx context.Context, documentID string) error {
	err := m.repo.TransitionStatus(
		ctx,
		documentID,
		domain.DocumentStatusPending,
		domain.DocumentStatusProcessing,
		"",
	)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrStatusConflict) {
		return err
	}

	document, getErr := m.repo.GetDocument(ctx, documentID)
	if getErr != nil {
		return getErr
	}
	if document.Status == domain.DocumentStatusProcessing {
		return fmt.Errorf("%w: document %s", ErrAlreadyRunning, documentID)
	}
	return fmt.Errorf(
		"%w: begin requires pending, document %s is %s",
		ErrInvalidTransition, documentID, document.Status,
	)
}

// Complete moves processing → completed and attaches the timeline
// atomically. A document that is not processing is rejected.
func (m *Machine) Complete(ctx context.Context, documentID string, timeline domain.Timeline) error {
	err := m.repo.CommitTimeline(ctx, documentID, timeline)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStatusConflict) {
		return fmt.Errorf("%w: complete requires processing, document %s", ErrInvalidTransition, documentID)
	}
	return err
}

// Fail moves processing → failed, recording the message.
func (m *Machine) Fail(ctx context.Context, documentID, errorMessage string) error {
	if len(errorMessage) > maxErrorMessageChars {
		errorMessage = errorMessage[:maxErrorMessageChars]
	}
	err := m.repo.TransitionStatus(
		ctx,
		documentID,
		domain.DocumentStatusProcessing,
		domain.DocumentStatusFailed,
		errorMessage,
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStatusConflict) {
		return fmt.Errorf("%w: fail requires processing, document %s", ErrInvalidTransition, documentID)
	}
	return err
}
