package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caselens/timeline-back/internal/chunker"
	"github.com/caselens/timeline-back/internal/domain"
	"github.com/caselens/timeline-back/internal/extract"
	"github.com/caselens/timeline-back/internal/state"
	"github.com/caselens/timeline-back/internal/textsource"
	"github.com/caselens/timeline-back/internal/timeline"
)

type OrchestratorDependencies struct {
	Machine       *state.Machine
	TextSource    textsource.Source
	Coordinator   *extract.Coordinator
	MaxChunkSize  int
	ChunkLookback int
	Logger        *log.Logger
}

// Orchestrator drives one end-to-end pipeline run per document:
// begin → load text → chunk → extract → merge → commit. Every failure after
// begin is routed through the state machine's Fail, so no run exits leaving
// the document in processing. The one exception is host-process death:
// there is no durable job record, and an abandoned run stays in processing.
type Orchestrator struct {
	machine       *state.Machine
	textSource    textsource.Source
	coordinator   *extract.Coordinator
	maxChunkSize  int
	chunkLookback int
	logger        *log.Logger
}

func NewOrchestrator(deps OrchestratorDependencies) *Orchestrator {
	if deps.MaxChunkSize <= 0 {
		deps.MaxChunkSize = 10000
	}
	if deps.ChunkLookback <= 0 {
		deps.ChunkLookback = chunker.DefaultBoundaryLookback
	}
	return &Orchestrator{
		machine:       deps.Machine,
		textSource:    deps.TextSource,
		coordinator:   deps.Coordinator,
		maxChunkSize:  deps.MaxChunkSize,
		chunkLookback: deps.ChunkLookback,
		logger:        deps.Logger,
	}
}

// Run executes one pipeline pass. A rejected begin returns the state
// machine's error with no other side effects.
func (o *Orchestrator) Run(ctx context.Context, documentID string) error {
	if err := o.machine.Begin(ctx, documentID); err != nil {
		return err
	}

	runErr := o.process(ctx, documentID)
	if runErr == nil {
		return nil
	}

	message := runErr.Error()
	if ctx.Err() != nil {
		message = "processing cancelled"
	}
	// The fail write must go through even when the run's context is already
	// dead, otherwise the document would be stranded in processing.
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if failErr := o.machine.Fail(failCtx, documentID, message); failErr != nil && o.logger != nil {
		o.logger.Printf("mark failed document_id=%s err=%v", documentID, failErr)
	}
	return runErr
}

func (o *Orchestrator) process(ctx context.Context, documentID string) error {
	text, err := o.textSource.ExtractedText(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load extracted text: %w", err)
	}

	chunks, err := chunker.SplitWithLookback(text, o.maxChunkSize, o.chunkLookback)
	if err != nil {
		return fmt.Errorf("chunk text: %w", err)
	}
	if o.logger != nil {
		o.logger.Printf("document chunked document_id=%s chunks=%d chars=%d", documentID, len(chunks), len(text))
	}

	perChunkEvents, failures, err := o.coordinator.ExtractAll(ctx, chunks)
	if err != nil {
		return summarizeExtractionFailure(failures, err)
	}

	merged := timeline.Merge(perChunkEvents)
	result := domain.Timeline{
		DocumentID: documentID,
		Events:     merged,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.machine.Complete(ctx, documentID, result); err != nil {
		return fmt.Errorf("commit timeline: %w", err)
	}

	if o.logger != nil {
		o.logger.Printf("document completed document_id=%s events=%d", documentID, len(merged))
	}
	return nil
}

// summarizeExtractionFailure produces the human-readable error_message for
// the document, leading with the first failing chunk's cause.
func summarizeExtractionFailure(failures []extract.ChunkFailure, err error) error {
	if len(failures) == 0 {
		if errors.Is(err, context.Canceled) {
			return errors.New("processing cancelled")
		}
		return fmt.Errorf("extraction failed: %w", err)
	}
	first := failures[0]
	if len(failures) > 1 {
		return fmt.Errorf("extraction failed on %d chunk(s); first: %s", len(failures), first)
	}
	return fmt.Errorf("extraction failed: %s", first)
}
