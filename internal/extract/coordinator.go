package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caselens/timeline-back/internal/domain"
)

// ChunkFailure records why one chunk could not be extracted, for diagnostics
// and for the orchestrator's error message.
type ChunkFailure struct {
	ChunkIndex int
	Attempts   int
	Permanent  bool
	Err        error
}

func (f ChunkFailure) String() string {
	kind := "transient retries exhausted"
	if f.Permanent {
		kind = "permanent failure"
	}
	return fmt.Sprintf("chunk %d: %s after %d attempt(s): %v", f.ChunkIndex, kind, f.Attempts, f.Err)
}

type CoordinatorConfig struct {
	ConcurrencyLimit int
	MaxAttempts      int
	InitialBackoff   time.Duration
}

// Coordinator fans chunks out to the extractor with bounded concurrency.
// Transient failures are retried with exponential backoff; permanent
// failures abort the chunk immediately. The run fails as a whole if any
// chunk fails: there is no partial-timeline success.
type Coordinator struct {
	extractor Extractor
	config    CoordinatorConfig
	logger    *log.Logger
}

func NewCoordinator(extractor Extractor, config CoordinatorConfig, logger *log.Logger) *Coordinator {
	if config.ConcurrencyLimit <= 0 {
		config.ConcurrencyLimit = 4
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 350 * time.Millisecond
	}
	return &Coordinator{
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// ExtractAll dispatches chunks in index order, at most ConcurrencyLimit in
// flight. On success the returned slice holds each chunk's sanitized events
// at the chunk's index, tagged with provenance. On failure it returns the
// collected per-chunk failures sorted by chunk index along with the first
// error; sibling extractions are cancelled.
func (c *Coordinator) ExtractAll(ctx context.Context, chunks []domain.Chunk) ([][]domain.Event, []ChunkFailure, error) {
	results := make([][]domain.Event, len(chunks))
	var (
		mu       sync.Mutex
		failures []ChunkFailure
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.config.ConcurrencyLimit)

	for _, chunk := range chunks {
		chunk := chunk
		group.Go(func() error {
			events, attempts, err := c.extractChunk(groupCtx, chunk)
			if err != nil {
				failure := ChunkFailure{
					ChunkIndex: chunk.Index,
					Attempts:   attempts,
					Permanent:  errors.Is(err, ErrPermanent),
					Err:        err,
				}
				mu.Lock()
				failures = append(failures, failure)
				mu.Unlock()
				if c.logger != nil {
					c.logger.Printf("extraction failed %s", failure)
				}
				return err
			}

			tagged := make([]domain.Event, len(events))
			for i, event := range events {
				event.ChunkIndex = chunk.Index
				tagged[i] = event
			}
			results[chunk.Index] = tagged
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		mu.Lock()
		sort.Slice(failures, func(i, j int) bool {
			return failures[i].ChunkIndex < failures[j].ChunkIndex
		})
		collected := failures
		mu.Unlock()
		return nil, collected, err
	}
	return results, nil, nil
}

func (c *Coordinator) extractChunk(ctx context.Context, chunk domain.Chunk) ([]domain.Event, int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		events, err := c.extractor.Extract(ctx, chunk)
		if err == nil {
			return SanitizeEvents(events), attempt, nil
		}
		lastErr = err

		if errors.Is(err, ErrPermanent) {
			return nil, attempt, err
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		backoff := c.config.InitialBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, c.config.MaxAttempts, fmt.Errorf("retries exhausted: %w", lastErr)
}
