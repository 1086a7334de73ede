package timeline

import (
	"testing"

	"github.com/caselens/timeline-back/internal/domain"
)

func event(date, description string, parties ...string) domain.Event {
	return domain.Event{
		Date:            date,
		Description:     description,
		InvolvedParties: parties,
	}
}

func TestMergeOrdersByDateThenDiscoveryOrder(t *testing.T) {
	perChunk := [][]domain.Event{
		{
			event("2023-06-15", "Contract signed", "Acme"),
			event("2021-01-01", "Negotiations begin", "Acme"),
		},
		{
			event("2022-03-10", "Term sheet exchanged", "Beta"),
			event("2023-06-15", "Notary stamp applied", "Notary"),
		},
	}

	merged := Merge(perChunk)
	if len(merged) != 4 {
		t.Fatalf("expected 4 events, got %d", len(merged))
	}

	wantOrder := []string{
		"Negotiations begin",
		"Term sheet exchanged",
		"Contract signed",
		"Notary stamp applied",
	}
	for i, want := range wantOrder {
		if merged[i].Description != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, merged[i].Description)
		}
	}
}

func TestMergeSameDateTieBreaksByChunkThenPosition(t *testing.T) {
	perChunk := [][]domain.Event{
		{
			event("2023-01-01", "first in chunk zero", "A"),
			event("2023-01-01", "second in chunk zero", "B"),
		},
		{
			event("2023-01-01", "first in chunk one", "C"),
		},
	}

	merged := Merge(perChunk)
	want := []string{"first in chunk zero", "second in chunk zero", "first in chunk one"}
	for i, description := range want {
		if merged[i].Description != description {
			t.Fatalf("position %d: expected %q, got %q", i, description, merged[i].Description)
		}
	}
}

func TestMergeUnparseableDatesSortLastNeverDropped(t *testing.T) {
	perChunk := [][]domain.Event{
		{
			event("unknown", "undated event from chunk zero", "A"),
			event("2024-12-31", "dated late", "B"),
		},
		{
			event("not-a-date", "undated event from chunk one", "C"),
			event("2020-01-01", "dated early", "D"),
		},
	}

	merged := Merge(perChunk)
	if len(merged) != 4 {
		t.Fatalf("expected 4 events, got %d", len(merged))
	}
	if merged[0].Description != "dated early" || merged[1].Description != "dated late" {
		t.Fatalf("dated events out of order: %q, %q", merged[0].Description, merged[1].Description)
	}
	if merged[2].Description != "undated event from chunk zero" {
		t.Fatalf("expected first undated event third, got %q", merged[2].Description)
	}
	if merged[3].Description != "undated event from chunk one" {
		t.Fatalf("expected second undated event last, got %q", merged[3].Description)
	}
}

func TestMergeDeduplicatesEquivalentEvents(t *testing.T) {
	perChunk := [][]domain.Event{
		{
			{Date: "2023-06-15", Description: "Contract  signed", InvolvedParties: []string{"Acme Corp", "Beta Inc"}, ChunkIndex: 0},
		},
		{
			// Same date, same normalized description, overlapping parties.
			{Date: "2023-06-15", Description: "contract signed", InvolvedParties: []string{"ACME CORP"}, ChunkIndex: 1},
		},
	}

	merged := Merge(perChunk)
	if len(merged) != 1 {
		t.Fatalf("expected duplicate to collapse, got %d events", len(merged))
	}
	if merged[0].ChunkIndex != 0 {
		t.Fatalf("expected the first occurrence by chunk order to win, got chunk %d", merged[0].ChunkIndex)
	}
}

func TestMergeKeepsEventsWithDisjointParties(t *testing.T) {
	perChunk := [][]domain.Event{
		{event("2023-06-15", "payment made", "Acme")},
		{event("2023-06-15", "payment made", "Gamma LLC")},
	}

	merged := Merge(perChunk)
	if len(merged) != 2 {
		t.Fatalf("expected disjoint-party events to survive, got %d", len(merged))
	}
}

func TestMergeEmptyPartySetOverlapsAnything(t *testing.T) {
	perChunk := [][]domain.Event{
		{event("2023-06-15", "filing submitted", "Acme")},
		{event("2023-06-15", "filing submitted")},
	}

	merged := Merge(perChunk)
	if len(merged) != 1 {
		t.Fatalf("expected empty party set to collapse against named parties, got %d", len(merged))
	}
}

func TestMergeDifferentDateFormatsSameDayCollapse(t *testing.T) {
	perChunk := [][]domain.Event{
		{event("2023-06-15", "hearing held", "Court")},
		{event("June 15, 2023", "hearing held", "Court")},
	}

	merged := Merge(perChunk)
	if len(merged) != 1 {
		t.Fatalf("expected same calendar day to collapse across formats, got %d", len(merged))
	}
}

func TestMergeUnknownDateDoesNotSwallowDatedEvent(t *testing.T) {
	perChunk := [][]domain.Event{
		{event("unknown", "board meeting", "Acme")},
		{event("2023-02-02", "board meeting", "Acme")},
	}

	merged := Merge(perChunk)
	if len(merged) != 2 {
		t.Fatalf("expected undated and dated variants to both survive, got %d", len(merged))
	}
}

func TestMergeEmptyInput(t *testing.T) {
	if merged := Merge(nil); len(merged) != 0 {
		t.Fatalf("expected empty merge, got %d", len(merged))
	}
	if merged := Merge([][]domain.Event{{}, {}}); len(merged) != 0 {
		t.Fatalf("expected empty merge from empty chunks, got %d", len(merged))
	}
}
