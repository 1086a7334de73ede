package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/caselens/timeline-back/internal/domain"
)

const unknownDate = "unknown"

var fencedBlockPattern = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// parseEvents decodes a model response into events. Models wrap JSON in
// markdown fences and occasionally emit junk items, so parsing is lenient
// per item but strict about the top-level shape: anything that is not a JSON
// array is a permanent failure.
func parseEvents(raw string) ([]domain.Event, error) {
	text := strings.TrimSpace(raw)
	if match := fencedBlockPattern.FindStringSubmatch(text); match != nil {
		text = strings.TrimSpace(match[1])
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, Permanent("response is not a JSON event array: %v", err)
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		var payload struct {
			Date            string   `json:"date"`
			Description     string   `json:"description"`
			InvolvedParties []string `json:"involved_parties"`
			Significance    string   `json:"significance"`
		}
		if err := json.Unmarshal(item, &payload); err != nil {
			// Skip malformed items rather than losing the whole chunk.
			continue
		}
		date := strings.TrimSpace(payload.Date)
		if date == "" {
			date = unknownDate
		}
		events = append(events, domain.Event{
			Date:            date,
			Description:     payload.Description,
			InvolvedParties: payload.InvolvedParties,
			Significance:    payload.Significance,
		})
	}
	return events, nil
}

func errorBody(statusCode int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 300 {
		snippet = snippet[:300]
	}
	return fmt.Errorf("extractor API status %d: %s", statusCode, snippet)
}
