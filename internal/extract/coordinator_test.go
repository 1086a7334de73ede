package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
)

type scriptedExtractor struct {
	mu       sync.Mutex
	calls    map[int]int
	behavior func(chunk domain.Chunk, attempt int) ([]domain.Event, error)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newScriptedExtractor(behavior func(chunk domain.Chunk, attempt int) ([]domain.Event, error)) *scriptedExtractor {
	return &scriptedExtractor{
		calls:    make(map[int]int),
		behavior: behavior,
	}
}

func (e *scriptedExtractor) Extract(_ context.Context, chunk domain.Chunk) ([]domain.Event, error) {
	current := e.inFlight.Add(1)
	for {
		observed := e.maxInFlight.Load()
		if current <= observed || e.maxInFlight.CompareAndSwap(observed, current) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	defer e.inFlight.Add(-1)

	e.mu.Lock()
	e.calls[chunk.Index]++
	attempt := e.calls[chunk.Index]
	e.mu.Unlock()

	return e.behavior(chunk, attempt)
}

func (e *scriptedExtractor) attempts(chunkIndex int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[chunkIndex]
}

func makeChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Text: fmt.Sprintf("chunk %d text", i)}
	}
	return chunks
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestExtractAllTagsEventsWithChunkProvenance(t *testing.T) {
	extractor := newScriptedExtractor(func(chunk domain.Chunk, _ int) ([]domain.Event, error) {
		return []domain.Event{
			{Date: "2023-01-01", Description: fmt.Sprintf("event from chunk %d", chunk.Index)},
		}, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{
		ConcurrencyLimit: 2,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
	}, testLogger())

	results, failures, err := coordinator.ExtractAll(context.Background(), makeChunks(5))
	if err != nil {
		t.Fatalf("extract all failed: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 chunk results, got %d", len(results))
	}
	for i, events := range results {
		if len(events) != 1 {
			t.Fatalf("chunk %d: expected 1 event, got %d", i, len(events))
		}
		if events[0].ChunkIndex != i {
			t.Fatalf("chunk %d: provenance is %d", i, events[0].ChunkIndex)
		}
	}
}

func TestExtractAllRetriesTransientFailures(t *testing.T) {
	extractor := newScriptedExtractor(func(chunk domain.Chunk, attempt int) ([]domain.Event, error) {
		if chunk.Index == 1 && attempt < 3 {
			return nil, errors.New("upstream timeout")
		}
		return []domain.Event{{Date: "2023-01-01", Description: "ok"}}, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{
		ConcurrencyLimit: 4,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
	}, testLogger())

	_, failures, err := coordinator.ExtractAll(context.Background(), makeChunks(3))
	if err != nil {
		t.Fatalf("expected success after retries, got %v (failures: %v)", err, failures)
	}
	if got := extractor.attempts(1); got != 3 {
		t.Fatalf("expected 3 attempts on flaky chunk, got %d", got)
	}
}

func TestExtractAllDoesNotRetryPermanentFailures(t *testing.T) {
	extractor := newScriptedExtractor(func(chunk domain.Chunk, _ int) ([]domain.Event, error) {
		if chunk.Index == 0 {
			return nil, Permanent("unsupported input")
		}
		return nil, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{
		ConcurrencyLimit: 1,
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
	}, testLogger())

	_, failures, err := coordinator.ExtractAll(context.Background(), makeChunks(1))
	if err == nil {
		t.Fatalf("expected failure")
	}
	if got := extractor.attempts(0); got != 1 {
		t.Fatalf("permanent failure retried: %d attempts", got)
	}
	if len(failures) != 1 || !failures[0].Permanent || failures[0].ChunkIndex != 0 {
		t.Fatalf("unexpected failure record: %+v", failures)
	}
}

func TestExtractAllFailsWholeRunOnOneBadChunk(t *testing.T) {
	extractor := newScriptedExtractor(func(chunk domain.Chunk, _ int) ([]domain.Event, error) {
		if chunk.Index == 3 {
			return nil, errors.New("always failing")
		}
		return []domain.Event{{Date: "2023-01-01", Description: "fine"}}, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{
		ConcurrencyLimit: 2,
		MaxAttempts:      2,
		InitialBackoff:   time.Millisecond,
	}, testLogger())

	results, failures, err := coordinator.ExtractAll(context.Background(), makeChunks(6))
	if err == nil {
		t.Fatalf("expected run-level failure")
	}
	if results != nil {
		t.Fatalf("expected no results on failure")
	}
	found := false
	for _, failure := range failures {
		if failure.ChunkIndex == 3 {
			found = true
			if failure.Permanent {
				t.Fatalf("transient failure reported as permanent")
			}
			if failure.Attempts != 2 {
				t.Fatalf("expected 2 attempts, got %d", failure.Attempts)
			}
		}
	}
	if !found {
		t.Fatalf("failing chunk missing from diagnostics: %v", failures)
	}
}

func TestExtractAllRespectsConcurrencyLimit(t *testing.T) {
	extractor := newScriptedExtractor(func(_ domain.Chunk, _ int) ([]domain.Event, error) {
		return nil, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{
		ConcurrencyLimit: 3,
		MaxAttempts:      1,
		InitialBackoff:   time.Millisecond,
	}, testLogger())

	if _, _, err := coordinator.ExtractAll(context.Background(), makeChunks(20)); err != nil {
		t.Fatalf("extract all failed: %v", err)
	}
	if observed := extractor.maxInFlight.Load(); observed > 3 {
		t.Fatalf("concurrency limit exceeded: observed %d in flight", observed)
	}
}

func TestExtractAllEmptyChunkList(t *testing.T) {
	extractor := newScriptedExtractor(func(_ domain.Chunk, _ int) ([]domain.Event, error) {
		t.Fatal("extractor must not be called")
		return nil, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{}, testLogger())

	results, failures, err := coordinator.ExtractAll(context.Background(), nil)
	if err != nil || len(failures) != 0 || len(results) != 0 {
		t.Fatalf("expected clean empty result, got %v %v %v", results, failures, err)
	}
}

func TestExtractAllSanitizesEvents(t *testing.T) {
	extractor := newScriptedExtractor(func(_ domain.Chunk, _ int) ([]domain.Event, error) {
		return []domain.Event{
			{Date: "2023-01-01", Description: "  kept   event  "},
			{Date: "2023-01-01", Description: "   "},
		}, nil
	})
	coordinator := NewCoordinator(extractor, CoordinatorConfig{InitialBackoff: time.Millisecond}, testLogger())

	results, _, err := coordinator.ExtractAll(context.Background(), makeChunks(1))
	if err != nil {
		t.Fatalf("extract all failed: %v", err)
	}
	if len(results[0]) != 1 {
		t.Fatalf("expected empty-description event dropped, got %d events", len(results[0]))
	}
	if results[0][0].Description != "kept event" {
		t.Fatalf("expected normalized description, got %q", results[0][0].Description)
	}
}
