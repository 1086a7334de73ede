package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/caselens/timeline-back/internal/domain"
)

// ErrPermanent marks an extraction failure that must not be retried:
// malformed or unsupported input, rejected requests, unusable model output.
// Everything else is treated as transient and eligible for retry.
var ErrPermanent = errors.New("permanent extraction failure")

// Extractor turns one chunk of document text into candidate timeline events.
// Implementations classify failures by wrapping ErrPermanent where a retry
// cannot help.
type Extractor interface {
	Extract(ctx context.Context, chunk domain.Chunk) ([]domain.Event, error)
}

// Permanent wraps err so callers see it as non-retryable via errors.Is.
func Permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}
