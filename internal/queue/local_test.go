package queue

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
)

func TestLocalQueueDeliversEnqueuedMessages(t *testing.T) {
	q := NewLocalQueue(8, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.SubmitMessage, 2)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.SubmitMessage) error {
			received <- message
			return nil
		})
	}()

	for _, id := range []string{"doc-1", "doc-2"} {
		if err := q.Enqueue(ctx, domain.SubmitMessage{DocumentID: id, RequestedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case message := <-received:
			seen[message.DocumentID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery, got %v", seen)
		}
	}
	if !seen["doc-1"] || !seen["doc-2"] {
		t.Fatalf("missing deliveries: %v", seen)
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	q := NewLocalQueue(8, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		attempts int
	)
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, _ domain.SubmitMessage) error {
			mu.Lock()
			attempts++
			current := attempts
			mu.Unlock()
			if current == 3 {
				close(done)
			}
			return errors.New("handler keeps failing")
		})
	}()

	if err := q.Enqueue(ctx, domain.SubmitMessage{DocumentID: "doc-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		mu.Lock()
		t.Fatalf("expected 3 attempts, saw %d", attempts)
	}

	deadline := time.Now().Add(2 * time.Second)
	for q.DLQSize() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("message never reached the DLQ")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if size := q.DLQSize(); size != 1 {
		t.Fatalf("expected 1 dead-lettered message, got %d", size)
	}

	mu.Lock()
	final := attempts
	mu.Unlock()
	if final != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", final)
	}
}

func TestLocalQueuePendingRetryDoesNotOutliveContext(t *testing.T) {
	q := NewLocalQueue(1, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())

	firstDelivery := make(chan struct{}, 1)
	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		_ = q.Consume(ctx, func(_ context.Context, _ domain.SubmitMessage) error {
			firstDelivery <- struct{}{}
			return errors.New("handler failed, retry scheduled")
		})
	}()

	if err := q.Enqueue(ctx, domain.SubmitMessage{DocumentID: "doc-retry"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-firstDelivery:
	case <-time.After(2 * time.Second):
		t.Fatalf("message never delivered")
	}

	// Stop the consumer before the retry fires, then fill the buffer so the
	// retry send cannot proceed. The goroutine must give up, not block.
	cancel()
	<-consumeDone
	if err := q.Enqueue(context.Background(), domain.SubmitMessage{DocumentID: "doc-filler"}); err != nil {
		t.Fatalf("enqueue filler: %v", err)
	}
	time.Sleep(700 * time.Millisecond)

	freshCtx, freshCancel := context.WithCancel(context.Background())
	defer freshCancel()
	delivered := make(chan string, 4)
	go func() {
		_ = q.Consume(freshCtx, func(_ context.Context, message domain.SubmitMessage) error {
			delivered <- message.DocumentID
			return nil
		})
	}()

	select {
	case id := <-delivered:
		if id != "doc-filler" {
			t.Fatalf("expected only the filler message, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("filler message never delivered")
	}
	select {
	case id := <-delivered:
		t.Fatalf("retry outlived its context: delivered %q", id)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestLocalQueueConsumeStopsOnContextCancel(t *testing.T) {
	q := NewLocalQueue(1, 3, log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Consume(ctx, func(context.Context, domain.SubmitMessage) error { return nil })
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consume did not return after cancel")
	}
}
