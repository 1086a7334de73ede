package extract

import (
	"context"

	"github.com/caselens/timeline-back/internal/domain"
)

// MockExtractor returns deterministic placeholder events. It stands in for
// the real model when no API key is configured, keeping the full pipeline
// runnable locally.
type MockExtractor struct{}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

func (m *MockExtractor) Extract(_ context.Context, chunk domain.Chunk) ([]domain.Event, error) {
	return []domain.Event{
		{
			Date:            "2023-01-15",
			Description:     "Sample event extracted from document (mock).",
			InvolvedParties: []string{"Party A", "Party B"},
			Significance:    "Mock significance for testing.",
		},
	}, nil
}
