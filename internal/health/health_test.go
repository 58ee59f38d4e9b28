package health

import (
	"testing"
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

func TestStatusBoundaries(t *testing.T) {
	th := DefaultThresholds()
	now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		lastSucc time.Time
		want     models.Status
	}{
		{"never succeeded", time.Time{}, models.StatusUnknown},
		{"just succeeded", now, models.StatusOnline},
		{"29s ago, still online", now.Add(-29 * time.Second), models.StatusOnline},
		{"30s ago, stale", now.Add(-30 * time.Second), models.StatusStale},
		{"119s ago, stale", now.Add(-119 * time.Second), models.StatusStale},
		{"120s ago, offline", now.Add(-120 * time.Second), models.StatusOffline},
		{"1h ago, offline", now.Add(-time.Hour), models.StatusOffline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &KitHealth{LastSuccessAt: tc.lastSucc}
			if got := h.Status(now, th); got != tc.want {
				t.Errorf("Status() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRecordSuccessResetsFailures(t *testing.T) {
	h := &KitHealth{ConsecutiveFailures: 7}
	h.RecordSuccess(time.Now())

	if h.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", h.ConsecutiveFailures)
	}
	if h.ConsecutiveSuccesses != 1 {
		t.Errorf("ConsecutiveSuccesses = %d, want 1", h.ConsecutiveSuccesses)
	}
}

func TestPollDelayExponentialWithCap(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{6, 5 * time.Minute}, // 5s*2^6 = 320s > 300s cap
		{100, 5 * time.Minute},
	}

	for _, tc := range cases {
		if got := PollDelay(tc.failures, th); got != tc.want {
			t.Errorf("PollDelay(%d) = %v, want %v", tc.failures, got, tc.want)
		}
	}
}

func TestPollDelayScenarioS1(t *testing.T) {
	// S1 (spec §8): after >=4 failures, poll interval has grown to >=40s.
	th := DefaultThresholds()
	if got := PollDelay(4, th); got < 40*time.Second {
		t.Errorf("PollDelay(4) = %v, want >= 40s", got)
	}
	if got := PollDelay(0, th); got != th.BaseInterval {
		t.Errorf("PollDelay(0) = %v, want base interval %v", got, th.BaseInterval)
	}
}
