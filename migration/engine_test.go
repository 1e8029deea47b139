package migration

import (
	"testing"

	"bitbucket.org/courseo/logistics_backend/models"
)

func TestRunStatus(t *testing.T) {
	cases := []struct {
		name     string
		summary  *RunSummary
		expected string
	}{
		{
			name: "all created",
			summary: &RunSummary{Kinds: map[EntityKind]*KindSummary{
				KindStore: {Created: 10},
			}},
			expected: models.MigrationRunStatusSuccess,
		},
		{
			name: "all duplicates is still success",
			summary: &RunSummary{Kinds: map[EntityKind]*KindSummary{
				KindStore: {Duplicates: 10},
			}},
			expected: models.MigrationRunStatusSuccess,
		},
		{
			name: "some write errors",
			summary: &RunSummary{Kinds: map[EntityKind]*KindSummary{
				KindStore: {Created: 8, WriteErrors: 2},
			}},
			expected: models.MigrationRunStatusPartial,
		},
		{
			name: "one kind unreachable",
			summary: &RunSummary{Kinds: map[EntityKind]*KindSummary{
				KindStore: {Created: 5},
				KindOrder: {SourceFailed: true},
			}},
			expected: models.MigrationRunStatusPartial,
		},
		{
			name: "nothing migrated and errors",
			summary: &RunSummary{Kinds: map[EntityKind]*KindSummary{
				KindStore: {SourceFailed: true},
			}},
			expected: models.MigrationRunStatusFailed,
		},
	}
	for _, tc := range cases {
		if got := runStatus(tc.summary); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestKindSummary_SkipTally(t *testing.T) {
	ks := &KindSummary{Kind: KindOrder}
	ks.skip(RejectDataInvalid)
	ks.skip(RejectDataInvalid)
	ks.skip(RejectStoreNotFound)

	if ks.Skipped[RejectDataInvalid] != 2 || ks.Skipped[RejectStoreNotFound] != 1 {
		t.Fatalf("unexpected skip tallies %v", ks.Skipped)
	}
	if ks.skippedTotal() != 3 {
		t.Fatalf("expected 3 skips total, got %d", ks.skippedTotal())
	}
}

func TestRunSummary_Totals(t *testing.T) {
	summary := &RunSummary{Kinds: map[EntityKind]*KindSummary{
		KindStore:  {Created: 10, Duplicates: 2},
		KindClient: {Created: 5, WriteErrors: 1},
		KindOrder:  {SourceFailed: true},
	}}

	if summary.Created() != 15 {
		t.Fatalf("expected 15 created, got %d", summary.Created())
	}
	if summary.Duplicates() != 2 {
		t.Fatalf("expected 2 duplicates, got %d", summary.Duplicates())
	}
	if summary.Errors() != 2 {
		t.Fatalf("expected 2 errors (1 write + 1 source), got %d", summary.Errors())
	}
}
