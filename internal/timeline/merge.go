package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"January 2, 2006",
}

// Merge flattens per-chunk event lists into one deduplicated, totally
// ordered timeline. Ordering: parsed date ascending, then (chunk index,
// position within chunk) ascending. Events whose date fails to parse are
// never dropped; they sort after all dated events in discovery order.
//
// Duplicates collapse when two events share a parsed date, a normalized
// description, and overlapping party sets; the first occurrence by chunk
// order wins.
func Merge(perChunkEvents [][]domain.Event) []domain.Event {
	type entry struct {
		event    domain.Event
		date     time.Time
		dated    bool
		chunk    int
		position int
	}

	kept := make([]entry, 0)
	// date+description → indexes into kept, for the party-overlap check.
	byKey := make(map[string][]int)

	for chunkIndex, events := range perChunkEvents {
		for position, event := range events {
			date, dated := parseDate(event.Date)
			key := dedupKey(event.Date, date, dated, event.Description)

			duplicate := false
			for _, existing := range byKey[key] {
				if partiesOverlap(kept[existing].event.InvolvedParties, event.InvolvedParties) {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}

			byKey[key] = append(byKey[key], len(kept))
			kept = append(kept, entry{
				event:    event,
				date:     date,
				dated:    dated,
				chunk:    chunkIndex,
				position: position,
			})
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.dated != b.dated {
			return a.dated
		}
		if a.dated && !a.date.Equal(b.date) {
			return a.date.Before(b.date)
		}
		if a.chunk != b.chunk {
			return a.chunk < b.chunk
		}
		return a.position < b.position
	})

	merged := make([]domain.Event, len(kept))
	for i, item := range kept {
		merged[i] = item.event
	}
	return merged
}

func parseDate(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			// Normalize to a calendar date; intra-day times do not order events.
			year, month, day := parsed.UTC().Date()
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func dedupKey(rawDate string, parsed time.Time, dated bool, description string) string {
	// Dated events key on the parsed calendar date so differently formatted
	// strings for the same day still collapse. Undated events only collapse
	// against the same raw string, so "unknown" never swallows a real date.
	date := "!" + strings.ToLower(strings.TrimSpace(rawDate))
	if dated {
		date = parsed.Format("2006-01-02")
	}
	return date + "|" + normalizeDescription(description)
}

func normalizeDescription(description string) string {
	return strings.ToLower(strings.Join(strings.Fields(description), " "))
}

// partiesOverlap treats an empty party list as matching anything: the model
// frequently omits parties on one of two otherwise identical mentions.
func partiesOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	seen := make(map[string]struct{}, len(a))
	for _, party := range a {
		seen[normalizeDescription(party)] = struct{}{}
	}
	for _, party := range b {
		if _, exists := seen[normalizeDescription(party)]; exists {
			return true
		}
	}
	return false
}
