package extract

import (
	"strings"

	"github.com/caselens/timeline-back/internal/domain"
)

const (
	maxDescriptionChars  = 500
	maxSignificanceChars = 300
	maxPartyChars        = 120
	maxPartiesPerEvent   = 12
)

// SanitizeEvents normalizes raw model output before it enters the merge:
// whitespace is collapsed, empty-description events are dropped, oversized
// fields are truncated at word boundaries, and party lists are trimmed and
// deduplicated case-insensitively. Order is preserved.
func SanitizeEvents(events []domain.Event) []domain.Event {
	sanitized := make([]domain.Event, 0, len(events))
	for _, event := range events {
		description := normalizeText(event.Description)
		if description == "" {
			continue
		}
		if len(description) > maxDescriptionChars {
			description = truncateAtWord(description, maxDescriptionChars)
		}

		significance := normalizeText(event.Significance)
		if len(significance) > maxSignificanceChars {
			significance = truncateAtWord(significance, maxSignificanceChars)
		}

		date := strings.TrimSpace(event.Date)
		if date == "" {
			date = unknownDate
		}

		sanitized = append(sanitized, domain.Event{
			Date:            date,
			Description:     description,
			InvolvedParties: sanitizeParties(event.InvolvedParties),
			Significance:    significance,
			ChunkIndex:      event.ChunkIndex,
		})
	}
	return sanitized
}

func sanitizeParties(parties []string) []string {
	seen := make(map[string]struct{}, len(parties))
	result := make([]string, 0, len(parties))
	for _, raw := range parties {
		party := normalizeText(raw)
		if party == "" {
			continue
		}
		if len(party) > maxPartyChars {
			party = truncateAtWord(party, maxPartyChars)
		}
		key := strings.ToLower(party)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, party)
		if len(result) == maxPartiesPerEvent {
			break
		}
	}
	return result
}

func normalizeText(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncateAtWord(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := strings.LastIndex(value[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return strings.TrimSpace(value[:cut])
}
