package extract

import (
	"errors"
	"testing"
)

func TestParseEventsPlainArray(t *testing.T) {
	raw := `[{"date":"2023-06-15","description":"Contract signed","involved_parties":["Acme Corp","Beta Inc"],"significance":"Effective date"}]`

	events, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Date != "2023-06-15" || events[0].Description != "Contract signed" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if len(events[0].InvolvedParties) != 2 {
		t.Fatalf("expected 2 parties, got %d", len(events[0].InvolvedParties))
	}
}

func TestParseEventsStripsMarkdownFences(t *testing.T) {
	raw := "Here are the events:\n```json\n[{\"date\":\"2023-01-01\",\"description\":\"Filed\"}]\n```\n"

	events, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 1 || events[0].Description != "Filed" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestParseEventsBareFence(t *testing.T) {
	raw := "```\n[{\"date\":\"2023-01-01\",\"description\":\"Filed\"}]\n```"

	events, err := parseEvents(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestParseEventsEmptyArray(t *testing.T) {
	events, err := parseEvents("[]")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestParseEventsMissingDateBecomesUnknown(t *testing.T) {
	events, err := parseEvents(`[{"description":"No date here"}]`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if events[0].Date != unknownDate {
		t.Fatalf("expected unknown date, got %q", events[0].Date)
	}
}

func TestParseEventsSkipsMalformedItems(t *testing.T) {
	events, err := parseEvents(`[{"date":"2023-01-01","description":"good"}, "junk", 42]`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(events) != 1 || events[0].Description != "good" {
		t.Fatalf("expected only the well-formed item, got %+v", events)
	}
}

func TestParseEventsNonArrayIsPermanent(t *testing.T) {
	for _, raw := range []string{`{"not":"an array"}`, "no json at all", ""} {
		_, err := parseEvents(raw)
		if !errors.Is(err, ErrPermanent) {
			t.Fatalf("input %q: expected ErrPermanent, got %v", raw, err)
		}
	}
}
