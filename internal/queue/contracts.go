package queue

import (
	"context"

	"github.com/caselens/timeline-back/internal/domain"
)

// Producer dispatches submit messages to a queue backend. One message
// triggers at most one orchestrator run; duplicate-run protection lives in
// the state machine, not here.
type Producer interface {
	Enqueue(ctx context.Context, message domain.SubmitMessage) error
}

// Consumer drains submit messages and hands them to a handler.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.SubmitMessage) error) error
}
