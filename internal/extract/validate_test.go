package extract

import (
	"strings"
	"testing"

	"github.com/caselens/timeline-back/internal/domain"
)

func TestSanitizeEventsDropsEmptyDescriptions(t *testing.T) {
	events := SanitizeEvents([]domain.Event{
		{Date: "2023-01-01", Description: "   "},
		{Date: "2023-01-01", Description: "kept"},
	})
	if len(events) != 1 || events[0].Description != "kept" {
		t.Fatalf("unexpected result: %+v", events)
	}
}

func TestSanitizeEventsNormalizesWhitespaceAndParties(t *testing.T) {
	events := SanitizeEvents([]domain.Event{
		{
			Date:            " 2023-06-15 ",
			Description:     "  Contract \n signed  today ",
			InvolvedParties: []string{" Acme Corp ", "acme corp", "", "Beta Inc"},
			Significance:    " matters\t a lot ",
		},
	})
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Description != "Contract signed today" {
		t.Fatalf("unexpected description %q", event.Description)
	}
	if event.Date != "2023-06-15" {
		t.Fatalf("unexpected date %q", event.Date)
	}
	if event.Significance != "matters a lot" {
		t.Fatalf("unexpected significance %q", event.Significance)
	}
	if len(event.InvolvedParties) != 2 {
		t.Fatalf("expected deduped parties, got %v", event.InvolvedParties)
	}
}

func TestSanitizeEventsBlankDateBecomesUnknown(t *testing.T) {
	events := SanitizeEvents([]domain.Event{{Date: "  ", Description: "something"}})
	if events[0].Date != unknownDate {
		t.Fatalf("expected unknown date, got %q", events[0].Date)
	}
}

func TestSanitizeEventsTruncatesAtWordBoundary(t *testing.T) {
	long := strings.Repeat("word ", 200)
	events := SanitizeEvents([]domain.Event{{Date: "2023-01-01", Description: long}})
	description := events[0].Description
	if len(description) > maxDescriptionChars {
		t.Fatalf("description not truncated: %d chars", len(description))
	}
	if strings.HasSuffix(description, " ") {
		t.Fatalf("truncation left trailing space")
	}
}

func TestSanitizeEventsPreservesProvenance(t *testing.T) {
	events := SanitizeEvents([]domain.Event{{Date: "2023-01-01", Description: "x", ChunkIndex: 7}})
	if events[0].ChunkIndex != 7 {
		t.Fatalf("chunk provenance lost: %d", events[0].ChunkIndex)
	}
}
