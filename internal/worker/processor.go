package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
	"github.com/caselens/timeline-back/internal/queue"
	"github.com/caselens/timeline-back/internal/service"
	"github.com/caselens/timeline-back/internal/state"
)

// Processor drains submit messages and runs the pipeline for each. Runs for
// different documents proceed independently on their own goroutines so one
// slow document never blocks the rest of the stream.
type Processor struct {
	consumer     queue.Consumer
	orchestrator *service.Orchestrator
	logger       *log.Logger
}

func NewProcessor(consumer queue.Consumer, orchestrator *service.Orchestrator, logger *log.Logger) *Processor {
	return &Processor{
		consumer:     consumer,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// processMessage always acks: the lifecycle is single-attempt. A failed run
// has already been recorded as the document's terminal failed status, and
// requeueing would only bounce off the state machine's begin gate.
func (p *Processor) processMessage(ctx context.Context, message domain.SubmitMessage) error {
	go func() {
		err := p.orchestrator.Run(ctx, message.DocumentID)
		if err == nil {
			return
		}
		if p.logger == nil {
			return
		}
		if errors.Is(err, state.ErrAlreadyRunning) || errors.Is(err, state.ErrInvalidTransition) {
			p.logger.Printf("run rejected document_id=%s: %v", message.DocumentID, err)
			return
		}
		p.logger.Printf("run failed document_id=%s: %v", message.DocumentID, err)
	}()
	return nil
}
