// Package health implements per-kit health tracking for the HTTP
// Collector (spec §4.2): consecutive success/failure counters, the
// derived online/stale/offline classification, and the poll-delay
// backoff function.
package health

import (
	"time"

	"github.com/alphafox02/WarDragonAnalytics/internal/models"
)

// Thresholds configures the boundary function of spec §4.2. Zero-valued
// fields are used as given, with no fallback to DefaultThresholds; a
// FailureCap of 0 or less leaves the failure count uncapped.
type Thresholds struct {
	StaleAfter   time.Duration
	OfflineAfter time.Duration
	BaseInterval time.Duration
	BackoffCap   time.Duration
	FailureCap   int
}

// DefaultThresholds matches spec §4.2's documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleAfter:   30 * time.Second,
		OfflineAfter: 120 * time.Second,
		BaseInterval: 5 * time.Second,
		BackoffCap:   5 * time.Minute,
		FailureCap:   20,
	}
}

// KitHealth tracks one kit's polling outcomes.
type KitHealth struct {
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	LastSuccessAt        time.Time
	LastPollAt           time.Time
}

// RecordSuccess resets the failure streak per spec §4.2 "Successful fetch
// resets failures to 0."
func (h *KitHealth) RecordSuccess(at time.Time) {
	h.ConsecutiveSuccesses++
	h.ConsecutiveFailures = 0
	h.LastSuccessAt = at
	h.LastPollAt = at
}

// RecordFailure bumps the failure streak without disturbing LastSuccessAt.
func (h *KitHealth) RecordFailure(at time.Time) {
	h.ConsecutiveFailures++
	h.ConsecutiveSuccesses = 0
	h.LastPollAt = at
}

// Status implements the boundary function of spec §4.2 / property 4.
func (h *KitHealth) Status(now time.Time, t Thresholds) models.Status {
	if h.LastSuccessAt.IsZero() {
		return models.StatusUnknown
	}

	since := now.Sub(h.LastSuccessAt)

	switch {
	case since < t.StaleAfter:
		return models.StatusOnline
	case since < t.OfflineAfter:
		return models.StatusStale
	default:
		return models.StatusOffline
	}
}

// PollDelay implements spec §4.2 / property 5 exactly:
// poll_delay(k failures) = min(base * 2^k, cap); success resets to base.
func PollDelay(consecutiveFailures int, t Thresholds) time.Duration {
	k := consecutiveFailures
	failureCap := t.FailureCap
	if failureCap > 0 && k > failureCap {
		k = failureCap
	}

	delay := t.BaseInterval
	for i := 0; i < k; i++ {
		delay *= 2
		if delay >= t.BackoffCap {
			return t.BackoffCap
		}
	}

	if delay > t.BackoffCap {
		return t.BackoffCap
	}

	return delay
}
