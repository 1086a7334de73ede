package chunker

import (
	"errors"
	"unicode/utf8"

	"github.com/caselens/timeline-back/internal/domain"
)

// ErrInvalidChunkSize rejects non-positive chunk sizes before any run starts.
var ErrInvalidChunkSize = errors.New("chunker: max chunk size must be a positive integer")

// DefaultBoundaryLookback is how far back from the hard limit Split searches
// for a whitespace break before falling back to a hard cut.
const DefaultBoundaryLookback = 200

// Split divides text into contiguous, non-overlapping chunks of at most
// maxChunkSize characters. Concatenating the chunks in order reproduces the
// input exactly: every character lands in exactly one chunk. Empty text
// yields zero chunks.
func Split(text string, maxChunkSize int) ([]domain.Chunk, error) {
	return SplitWithLookback(text, maxChunkSize, DefaultBoundaryLookback)
}

// SplitWithLookback is Split with an explicit whitespace lookback window.
// The soft boundary is a quality heuristic only; a window of zero disables it
// and every cut lands at maxChunkSize, backed up to the nearest rune start so
// no chunk ever splits a character.
func SplitWithLookback(text string, maxChunkSize, lookback int) ([]domain.Chunk, error) {
	if maxChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if lookback < 0 {
		lookback = 0
	}
	if text == "" {
		return nil, nil
	}

	chunks := make([]domain.Chunk, 0, len(text)/maxChunkSize+1)
	start := 0
	for start < len(text) {
		end := start + maxChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			cutAtWhitespace := false
			if lookback > 0 {
				windowStart := end - lookback
				if windowStart < start {
					windowStart = start
				}
				// Keep the separator with the left chunk so coverage stays lossless.
				if cut := lastWhitespace(text, windowStart, end); cut > start {
					end = cut + 1
					cutAtWhitespace = true
				}
			}
			if !cutAtWhitespace {
				// A hard cut must not land inside a multi-byte rune: both halves
				// would be invalid UTF-8 and the boundary character would be lost
				// when the chunk is serialized for the model.
				for end > start && !utf8.RuneStart(text[end]) {
					end--
				}
				if end == start {
					_, size := utf8.DecodeRuneInString(text[start:])
					end = start + size
				}
			}
		}
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
		start = end
	}
	return chunks, nil
}

func lastWhitespace(text string, from, to int) int {
	for i := to - 1; i >= from; i-- {
		switch text[i] {
		case ' ', '\n', '\t', '\r':
			return i
		}
	}
	return -1
}
