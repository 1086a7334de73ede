package extract

import (
	"context"
	"encoding/json"

	"github.com/caselens/timeline-back/internal/cache"
	"github.com/caselens/timeline-back/internal/domain"
)

// CachedExtractor wraps an extractor with a content-addressed result cache.
// Only successful extractions are cached; failures always go back to the
// underlying extractor.
type CachedExtractor struct {
	base    Extractor
	cache   *cache.ExtractionCache
	modelID string
}

func NewCachedExtractor(base Extractor, resultCache *cache.ExtractionCache, modelID string) *CachedExtractor {
	return &CachedExtractor{
		base:    base,
		cache:   resultCache,
		modelID: modelID,
	}
}

func (c *CachedExtractor) Extract(ctx context.Context, chunk domain.Chunk) ([]domain.Event, error) {
	signature := cache.BuildSignature(c.modelID, chunk.Text)

	if entry, exists := c.cache.Get(signature); exists {
		var events []domain.Event
		if err := json.Unmarshal(entry.Value, &events); err == nil {
			return events, nil
		}
		// Unreadable entry: fall through and overwrite it.
	}

	events, err := c.base.Extract(ctx, chunk)
	if err != nil {
		return nil, err
	}

	if encoded, encodeErr := json.Marshal(events); encodeErr == nil {
		c.cache.Set(signature, cache.Entry{Value: encoded, ModelID: c.modelID})
	}
	return events, nil
}
