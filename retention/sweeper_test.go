package retention

import (
	"testing"
	"time"

	"bitbucket.org/courseo/logistics_backend/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		client   models.Client
		expected RetentionState
	}{
		{
			name:     "future deadline is active",
			client:   models.Client{RetentionUntil: timePtr(now.AddDate(1, 0, 0))},
			expected: StateActive,
		},
		{
			name:     "deadline exactly now is still active",
			client:   models.Client{RetentionUntil: timePtr(now)},
			expected: StateActive,
		},
		{
			name:     "past deadline is expired",
			client:   models.Client{RetentionUntil: timePtr(now.AddDate(0, 0, -1))},
			expected: StateExpired,
		},
		{
			name:     "deletion request expires regardless of deadline",
			client:   models.Client{RetentionUntil: timePtr(now.AddDate(1, 0, 0)), DeletionRequested: true},
			expected: StateExpired,
		},
		{
			name:     "pseudonymized is terminal",
			client:   models.Client{RetentionUntil: timePtr(now.AddDate(0, 0, -1)), Pseudonymized: true},
			expected: StatePseudonymized,
		},
		{
			name:     "missing deadline is active until repaired",
			client:   models.Client{},
			expected: StateActive,
		},
	}
	for _, tc := range cases {
		if got := Classify(&tc.client, now); got != tc.expected {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestRetentionUntilFrom_IsMonotonicWindow(t *testing.T) {
	lastActivity := time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)
	until := models.RetentionUntilFrom(lastActivity)

	expected := time.Date(2025, 5, 10, 14, 30, 0, 0, time.UTC)
	if !until.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, until)
	}

	later := lastActivity.AddDate(0, 3, 0)
	if !models.RetentionUntilFrom(later).After(until) {
		t.Fatal("a later activity must always push the deadline forward")
	}
}

func TestMaskedValues_DifferFromRealData(t *testing.T) {
	// The sweep must never write values that could pass for real data.
	if models.MaskedName == "" {
		t.Fatal("masked name must be a visible marker")
	}
	if models.MaskedPhone == "" || models.MaskedPhone[0] != '0' {
		t.Fatalf("unexpected masked phone %q", models.MaskedPhone)
	}
	if models.MaskedAddress != "" {
		t.Fatalf("masked address should be cleared, got %q", models.MaskedAddress)
	}
}

func TestNextRun_SchedulesAtSweepHour(t *testing.T) {
	s := &Sweeper{Now: func() time.Time {
		return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	}}

	next := s.nextRun()
	if next.Hour() != sweepHour() {
		t.Fatalf("expected run at hour %d, got %d", sweepHour(), next.Hour())
	}
	if !next.After(s.Now()) {
		t.Fatalf("next run must be in the future, got %v", next)
	}
	// 10:00 is past the default 03:00 slot, so the run lands tomorrow.
	if next.Day() != 2 {
		t.Fatalf("expected next run tomorrow, got %v", next)
	}
}

func TestNextRun_TodayWhenBeforeSweepHour(t *testing.T) {
	s := &Sweeper{Now: func() time.Time {
		return time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)
	}}
	next := s.nextRun()
	if next.Day() != 1 || next.Hour() != sweepHour() {
		t.Fatalf("expected today's slot, got %v", next)
	}
}
