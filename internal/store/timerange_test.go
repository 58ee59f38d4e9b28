package store

import (
	"testing"
	"time"
)

func TestParseTimeRangeTokens(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		token     string
		wantStart time.Time
	}{
		{"1h", now.Add(-1 * time.Hour)},
		{"24h", now.Add(-24 * time.Hour)},
		{"7d", now.Add(-7 * 24 * time.Hour)},
	}

	for _, tc := range cases {
		tr, err := ParseTimeRange(tc.token, now)
		if err != nil {
			t.Fatalf("ParseTimeRange(%q) error: %v", tc.token, err)
		}
		if !tr.Start.Equal(tc.wantStart) {
			t.Errorf("ParseTimeRange(%q).Start = %v, want %v", tc.token, tr.Start, tc.wantStart)
		}
		if !tr.End.Equal(now) {
			t.Errorf("ParseTimeRange(%q).End = %v, want %v", tc.token, tr.End, now)
		}
	}
}

func TestParseTimeRangeCustom(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	tr, err := ParseTimeRange("custom:2026-08-01T00:00:00Z,2026-08-02T00:00:00Z", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tr.Start.Format(time.RFC3339) != "2026-08-01T00:00:00Z" {
		t.Errorf("unexpected start: %v", tr.Start)
	}
	if tr.End.Format(time.RFC3339) != "2026-08-02T00:00:00Z" {
		t.Errorf("unexpected end: %v", tr.End)
	}
}

func TestParseTimeRangeCustomRejectsBackwardsWindow(t *testing.T) {
	now := time.Now()
	_, err := ParseTimeRange("custom:2026-08-02T00:00:00Z,2026-08-01T00:00:00Z", now)
	if err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestParseTimeRangeDefaultsToOneHour(t *testing.T) {
	now := time.Now()
	tr, err := ParseTimeRange("", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tr.End.Sub(tr.Start); got != time.Hour {
		t.Errorf("default window = %v, want 1h", got)
	}
}

func TestParseTimeRangeRejectsGarbage(t *testing.T) {
	if _, err := ParseTimeRange("nonsense", time.Now()); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestClampToMaxRangePullsStartForward(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: now.Add(-30 * 24 * time.Hour), End: now}

	clamped := ClampToMaxRange(tr, 168)
	if !clamped.End.Equal(now) {
		t.Errorf("End should be unchanged, got %v", clamped.End)
	}
	if want := now.Add(-168 * time.Hour); !clamped.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", clamped.Start, want)
	}
}

func TestClampToMaxRangeLeavesNarrowerWindowAlone(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: now.Add(-1 * time.Hour), End: now}

	clamped := ClampToMaxRange(tr, 168)
	if !clamped.Start.Equal(tr.Start) {
		t.Errorf("Start should be unchanged, got %v", clamped.Start)
	}
}

func TestClampToMaxRangeDisabledByNonPositiveMax(t *testing.T) {
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	tr := TimeRange{Start: now.Add(-1000 * time.Hour), End: now}

	if clamped := ClampToMaxRange(tr, 0); !clamped.Start.Equal(tr.Start) {
		t.Errorf("maxHours<=0 should disable clamping, got %v", clamped.Start)
	}
}
