package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeRange is a resolved [Start, End) window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeRange decodes the time_range query token family from spec §6:
// "Nh", "Nd", or "custom:ISO,ISO".
func ParseTimeRange(token string, now time.Time) (TimeRange, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TimeRange{Start: now.Add(-1 * time.Hour), End: now}, nil
	}

	if strings.HasPrefix(token, "custom:") {
		parts := strings.SplitN(strings.TrimPrefix(token, "custom:"), ",", 2)
		if len(parts) != 2 {
			return TimeRange{}, fmt.Errorf("time_range: custom window requires two comma-separated ISO timestamps")
		}

		start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
		if err != nil {
			return TimeRange{}, fmt.Errorf("time_range: invalid start: %w", err)
		}

		end, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
		if err != nil {
			return TimeRange{}, fmt.Errorf("time_range: invalid end: %w", err)
		}

		if !end.After(start) {
			return TimeRange{}, fmt.Errorf("time_range: end must be after start")
		}

		return TimeRange{Start: start, End: end}, nil
	}

	if len(token) < 2 {
		return TimeRange{}, fmt.Errorf("time_range: invalid token %q", token)
	}

	unit := token[len(token)-1]
	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return TimeRange{}, fmt.Errorf("time_range: invalid token %q", token)
	}

	var dur time.Duration
	switch unit {
	case 'h':
		dur = time.Duration(n) * time.Hour
	case 'd':
		dur = time.Duration(n) * 24 * time.Hour
	default:
		return TimeRange{}, fmt.Errorf("time_range: unsupported unit in %q", token)
	}

	return TimeRange{Start: now.Add(-dur), End: now}, nil
}

// ClampToMaxRange caps a resolved window to maxHours, pulling Start
// forward (never past End) when the requested window is wider than the
// configured ceiling. A non-positive maxHours disables the cap.
func ClampToMaxRange(tr TimeRange, maxHours int) TimeRange {
	if maxHours <= 0 {
		return tr
	}
	if maxRange := time.Duration(maxHours) * time.Hour; tr.End.Sub(tr.Start) > maxRange {
		tr.Start = tr.End.Add(-maxRange)
	}
	return tr
}
